// Package doc assembles every layer below it — replica identity, the
// vector-clock ledger, the causal buffer, the metadata layer, the Collab
// tree, the transaction manager, the save/load engine, and the event pump
// — into the external Document API.
package doc

import (
	"github.com/collabtext/collabrt/causal"
	"github.com/collabtext/collabrt/collab"
	"github.com/collabtext/collabrt/collaberr"
	"github.com/collabtext/collabrt/events"
	"github.com/collabtext/collabrt/meta"
	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/saveload"
	"github.com/collabtext/collabrt/txn"
	"github.com/collabtext/collabrt/vectorclock"
	"github.com/collabtext/collabrt/wire"
)

// Document is one replica's live copy of a document: its identity, its
// applied-transactions ledger, its pending causal buffer, its tree of
// Collabs, and the transaction/event machinery that ties them together.
// It is not safe for concurrent use from multiple goroutines — the runtime
// is single-threaded cooperative; callers serialize their own access (e.g.
// one goroutine per document, or an external lock).
type Document struct {
	replicaID replicaid.ID
	ledger    vectorclock.Clock
	buffer    *causal.Buffer
	manager   *txn.Manager
	pump      *events.Pump
	root      *collab.Map
}

// Option configures a Document at construction.
type Option func(*Document)

// WithReplicaID pins the document to a specific replica identifier instead
// of generating a fresh random one — useful for tests and for resuming a
// session that previously saved its identity alongside application state.
func WithReplicaID(id replicaid.ID) Option {
	return func(d *Document) { d.replicaID = id }
}

// New constructs an empty document: a root Collab with no children yet.
// Callers register their schema with Root().RegisterChild before using
// the document.
func New(opts ...Option) *Document {
	d := &Document{}
	for _, o := range opts {
		o(d)
	}
	if d.replicaID == "" {
		d.replicaID = replicaid.New()
	}
	d.ledger = vectorclock.New()
	d.buffer = causal.New(d.ledger)
	d.manager = txn.New(d.replicaID, d.ledger)
	d.pump = events.New()
	d.root = collab.NewMap("", nil, d)
	return d
}

// ReplicaID returns this document's opaque, immutable identifier.
func (d *Document) ReplicaID() replicaid.ID {
	return d.replicaID
}

// VectorClock returns an independent snapshot of the applied-transactions
// ledger.
func (d *Document) VectorClock() vectorclock.Clock {
	return d.ledger.Snapshot()
}

// Root returns the document's root Collab, for schema registration.
func (d *Document) Root() *collab.Map {
	return d.root
}

// BufferDepth reports how many received transactions are currently held
// (pending on a causal dependency, or quarantined after a failed apply),
// for monitoring.
func (d *Document) BufferDepth() int {
	return d.buffer.Len()
}

// QuarantineCount reports how many received transactions are currently
// quarantined after a failed apply, for monitoring.
func (d *Document) QuarantineCount() int {
	return d.buffer.QuarantineLen()
}

// IDOf returns c's stable path address.
func (d *Document) IDOf(c collab.Collab) collab.ID {
	return collab.IDOf(c)
}

// FromID returns the Collab addressed by id, or false if no such Collab
// currently exists.
func (d *Document) FromID(id collab.ID) (collab.Collab, bool) {
	return collab.FromID(d.root, id)
}

// OnSend subscribes to Send events (a transaction's bytes, ready to
// broadcast).
func (d *Document) OnSend(f func(events.Send)) { d.pump.OnSend(f) }

// OnUpdate subscribes to Update events.
func (d *Document) OnUpdate(f func(events.Update)) { d.pump.OnUpdate(f) }

// OnChange subscribes to Change events.
func (d *Document) OnChange(f func()) { d.pump.OnChange(f) }

// Transact runs f with a local transaction open, committing at most one
// Send when f returns (nothing is sent for an empty transaction). Nested
// Transact calls, including ones entered via a Collab calling SendCRDT
// outside any caller-visible Transact, join the outermost transaction.
func (d *Document) Transact(f func() error) error {
	committed, err := d.manager.Transact(f)
	if err != nil {
		return err
	}
	if committed == nil {
		return nil
	}
	d.pump.EmitSend(events.Send{Bytes: committed.Raw})
	d.pump.EmitUpdate(events.Update{Kind: events.KindMessage})
	d.pump.RequestChange()
	return nil
}

// BatchRemoteUpdates runs f, coalescing every Change produced by remote
// deliveries inside f into exactly one Change at the end of the outermost
// batch.
func (d *Document) BatchRemoteUpdates(f func() error) error {
	return d.pump.BatchRemoteUpdates(f)
}

// SendCRDT implements collab.Runtime for Primitives: it records one op in
// the current transaction (opening an auto-transaction scoped to just this
// call if none is open) and applies it locally via c.ReceivePrimitive
// before returning. A local op against a frozen placeholder fails fast
// instead, since a deleted dynamic child has nothing left to apply to.
func (d *Document) SendCRDT(c collab.Primitive, payload []byte, req meta.Request) error {
	if _, frozen := c.(*collab.Frozen); frozen {
		return &collaberr.FrozenOp{Path: []string(c.ID())}
	}

	path := []string(c.ID())
	echo := func(_ []string, payload []byte, m meta.Incoming) error {
		return c.ReceivePrimitive(payload, m)
	}

	if d.manager.InTransaction() {
		return d.manager.SendOp(path, payload, req, echo)
	}
	return d.Transact(func() error {
		return d.manager.SendOp(path, payload, req, echo)
	})
}

// RegisterDynamicChild implements collab.Runtime: it derives the
// deterministic child name from the creating op's (senderID, senderCounter,
// localIndex) and attaches the factory's result under parent. Calling it
// twice for the same (senderID, senderCounter, localIndex) is idempotent —
// it returns the already-registered child instead of erroring — since a
// quarantine retry or a duplicate delivery may replay the same creating op.
func (d *Document) RegisterDynamicChild(parent collab.Composite, senderID replicaid.ID, senderCounter uint32, localIndex int, factory func(name string) collab.Collab) (collab.Collab, error) {
	name := collab.DynamicChildName(senderID.String(), senderCounter, localIndex)
	if existing, ok := parent.Child(name); ok {
		return existing, nil
	}
	child := factory(name)
	if err := parent.RegisterChild(name, child); err != nil {
		return nil, err
	}
	return child, nil
}

// RegisterChild attaches child under name at the root and retries any
// transactions quarantined for SchemaMismatch, per the frozen
// open-question decision that quarantine is retried, never permanently
// dropped, after every schema registration.
func (d *Document) RegisterChild(name string, child collab.Collab) error {
	if err := d.root.RegisterChild(name, child); err != nil {
		return err
	}
	return d.BatchRemoteUpdates(func() error {
		return d.retryQuarantine(nil)
	})
}

// Receive parses and causally delivers incoming transaction bytes. caller
// is an opaque tag forwarded on the resulting Update event so a provider
// can recognize its own echoes. Calling Receive while a local transaction
// is open is a usage error.
func (d *Document) Receive(raw []byte, caller interface{}) error {
	if d.manager.InTransaction() {
		return &collaberr.Usage{Reason: "receive called inside an open local transaction"}
	}
	return d.pump.BatchRemoteUpdates(func() error {
		return d.receiveOne(raw, caller)
	})
}

func (d *Document) receiveOne(raw []byte, caller interface{}) error {
	tx, err := wire.Decode(raw)
	if err != nil {
		return &collaberr.Protocol{Reason: err.Error()}
	}
	_, err = d.buffer.Deliver(tx, raw, func(e causal.Entry) error {
		return d.applyEntry(e, caller)
	})
	return err
}

func (d *Document) retryQuarantine(caller interface{}) error {
	_, err := d.buffer.Retry(func(e causal.Entry) error {
		return d.applyEntry(e, caller)
	})
	return err
}

func (d *Document) applyEntry(e causal.Entry, caller interface{}) error {
	tx := e.Tx
	incoming := meta.Incoming{
		SenderID:      tx.SenderID,
		SenderCounter: tx.SenderCounter,
		VectorClock:   meta.PlainReader{Clock: tx.VectorClock},
		WallClockTime: tx.WallClockTime,
		LamportTime:   tx.LamportTimestamp,
	}

	for _, op := range tx.Ops {
		if err := d.root.Receive(collab.ID(op.Path), op.Payload, incoming); err != nil {
			return &collaberr.SchemaMismatch{
				SenderID:      tx.SenderID.String(),
				SenderCounter: tx.SenderCounter,
				Path:          op.Path,
				Reason:        err.Error(),
			}
		}
	}

	if tx.LamportTimestamp != nil {
		d.manager.ObserveLamport(*tx.LamportTimestamp)
	}

	d.pump.EmitUpdate(events.Update{Kind: events.KindMessage, Caller: caller})
	d.pump.RequestChange()
	return nil
}

// Save serializes the entire document state — vector clock, pending causal
// buffer, and the recursive tree of each Collab's own bytes — into a
// compact blob suitable for Load.
func (d *Document) Save() ([]byte, error) {
	tree, err := saveload.BuildTree(d.root)
	if err != nil {
		return nil, &collaberr.Serialization{Reason: err.Error()}
	}
	state := &saveload.Document{
		VectorClock:   d.ledger.Snapshot(),
		PendingBuffer: d.buffer.PendingForSave(),
		Tree:          tree,
	}
	data, err := saveload.Encode(state)
	if err != nil {
		return nil, &collaberr.Serialization{Reason: err.Error()}
	}
	return data, nil
}

// Load installs previously saved bytes. It merges the saved vector clock
// into the local ledger by element-wise max, hands each Collab its saved
// bytes alongside both vector clocks so it can reconcile state itself, and
// re-delivers the saved causal buffer (idempotent with respect to already
// -known history). caller is forwarded on the resulting Update event.
func (d *Document) Load(raw []byte, caller interface{}) error {
	loaded, err := saveload.Decode(raw)
	if err != nil {
		return &collaberr.Protocol{Reason: err.Error()}
	}

	localBefore := d.ledger.Snapshot()
	d.ledger.MergeMax(loaded.VectorClock)

	if err := saveload.ApplyTree(d.root, loaded.Tree, localBefore, loaded.VectorClock); err != nil {
		return err
	}

	return d.pump.BatchRemoteUpdates(func() error {
		for _, pendingRaw := range loaded.PendingBuffer {
			// Best-effort: a malformed or still-unready buffered
			// transaction does not abort the load, it simply stays (or
			// returns to) quarantine/pending for a later retry.
			_ = d.receiveOne(pendingRaw, caller)
		}
		_ = d.retryQuarantine(caller)

		d.pump.EmitUpdate(events.Update{Kind: events.KindSavedState, Caller: caller})
		d.pump.RequestChange()
		return nil
	})
}

var _ collab.Runtime = (*Document)(nil)
