package collab

import "github.com/collabtext/collabrt/meta"

// Frozen replaces a dynamic child after it has been deleted. Remote
// messages addressed to it are silently dropped (convergence requires
// every replica to treat the deleted child identically); local operations
// fail fast with FrozenOp. Restoring a deleted child is not supported.
type Frozen struct {
	Base
}

// NewFrozen constructs a frozen placeholder standing in for name, which
// must previously have been a live child of parent.
func NewFrozen(name string, parent Collab, rt Runtime) *Frozen {
	return &Frozen{Base: NewBase(name, parent, rt)}
}

// ReceivePrimitive implements the remote-delivery no-op: messages that
// arrive for a frozen child (e.g. a concurrent edit racing a delete) are
// dropped without error, so the ledger still advances.
func (f *Frozen) ReceivePrimitive(payload []byte, m meta.Incoming) error {
	return nil
}

// SavePrimitive contributes nothing; a frozen child is never part of
// saved output once deleted.
func (f *Frozen) SavePrimitive() ([]byte, error) {
	return nil, nil
}

// LoadPrimitive is a no-op: a frozen placeholder has no state to load.
func (f *Frozen) LoadPrimitive(data []byte, lm LoadMeta) error {
	return nil
}

// CanGC reports true: a frozen child carries no state to retain.
func (f *Frozen) CanGC() bool {
	return true
}

var _ Primitive = (*Frozen)(nil)
