// Package collab implements the Collab tree: the named hierarchy of
// sub-CRDTs that make up a document, and the routing, registration, and
// lifecycle rules attached to it.
package collab

import (
	"github.com/collabtext/collabrt/meta"
	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"
)

// Collab is the common identity surface of every node in the tree, leaf or
// interior.
type Collab interface {
	// Name is the edge label this node was registered under in its parent.
	// The root's name is "".
	Name() string
	// Parent returns the owning Composite, or nil for the root.
	Parent() Collab
	// ID returns the root-to-node path, recomputed from Name/Parent.
	ID() ID
}

// Runtime is what the document's transaction manager exposes to Collab
// implementations.
type Runtime interface {
	// SendCRDT opens or extends the current transaction with one op whose
	// path is c.ID() and whose payload is the given bytes, requesting the
	// given metadata be attached. It applies the op locally via c's own
	// ReceivePrimitive before returning, per the synchronous local echo
	// rule.
	SendCRDT(c Primitive, payload []byte, req meta.Request) error
	// RegisterDynamicChild computes the deterministic name for a child
	// created in response to the (senderID, senderCounter) op currently
	// being applied (local or remote) at position localIndex among the
	// dynamic children that op creates, and attaches the factory's result
	// under parent with that name — so every replica processing the same
	// creating op names the new child identically.
	RegisterDynamicChild(parent Composite, senderID replicaid.ID, senderCounter uint32, localIndex int, factory func(name string) Collab) (Collab, error)
}

// Primitive is a leaf Collab: it owns opaque bytes and has no children.
type Primitive interface {
	Collab
	// ReceivePrimitive applies a remote or locally-echoed op.
	ReceivePrimitive(payload []byte, m meta.Incoming) error
	// SavePrimitive returns this Collab's own serialization, or nil if it
	// has nothing to contribute (e.g. it is GC-eligible and in its initial
	// state).
	SavePrimitive() ([]byte, error)
	// LoadPrimitive installs saved bytes (possibly nil, if the saved tree
	// omitted this node) alongside both the local and loaded vector
	// clocks, so the Collab can resolve conflicts between its in-memory
	// state and the loaded state itself — the runtime does not merge
	// Collab state.
	LoadPrimitive(data []byte, lm LoadMeta) error
	// CanGC reports whether this Collab is currently in its initial state
	// and may be omitted from Save output.
	CanGC() bool
}

// Composite is an interior Collab: it owns named children and routes
// messages to them by path.
type Composite interface {
	Collab
	// Receive routes payload to the child named by the first element of
	// path, stripping that element before recursing or delivering.
	Receive(path ID, payload []byte, m meta.Incoming) error
	// Child returns the named child, or false if no child of that name was
	// ever registered. A child deleted from a dynamic collection is still
	// returned, as the Frozen placeholder that replaced it.
	Child(name string) (Collab, bool)
	// Children returns child names in deterministic (lexicographic) order,
	// the order required for stable Save output across replicas.
	Children() []string
	// RegisterChild attaches child under name. Duplicate names within the
	// same parent are a fatal programmer error, reported as a
	// *DuplicateChildError (a Usage-class error).
	RegisterChild(name string, child Collab) error
}

// LoadMeta is the metadata a Primitive sees during LoadPrimitive: the
// vector clock already applied locally before the load, and the vector
// clock carried in the saved state being loaded, so the Collab can decide
// how to reconcile its in-memory state with the loaded bytes.
type LoadMeta struct {
	Local  vectorclock.Clock
	Loaded vectorclock.Clock
}
