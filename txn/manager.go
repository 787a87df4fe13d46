// Package txn implements the transaction manager: it batches local
// operations into atomic transactions with one Send per transaction,
// applies each op's effect locally via synchronous echo, and tracks the
// per-document Lamport clock used by Collabs that request one.
package txn

import (
	"time"

	"github.com/collabtext/collabrt/collaberr"
	"github.com/collabtext/collabrt/meta"
	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"
	"github.com/collabtext/collabrt/wire"
)

// Echo is called once per local op, synchronously, so the sender observes
// its own change immediately. It must apply payload to the target Collab
// and return any error from that apply.
type Echo func(path []string, payload []byte, m meta.Incoming) error

// Committed is the result of a closed, non-empty transaction: the decoded
// form and its wire bytes, ready for the Send event.
type Committed struct {
	Tx  *wire.Transaction
	Raw []byte
}

// Manager owns the single-open-transaction state machine. It is not safe
// for concurrent use; the runtime's single-threaded model is what makes
// that acceptable.
type Manager struct {
	replicaID replicaid.ID
	ledger    vectorclock.Clock
	lamport   uint64

	depth   int
	current *open
}

type open struct {
	counter   uint32
	opened    bool // true once the first op has claimed a counter
	ops       []wire.Op
	tracker   *meta.UsedKeyTracker
	requested map[replicaid.ID]struct{}
	wallClock bool
	lamport   bool
}

// New constructs a manager for replicaID, sharing ledger with the rest of
// the document (the causal buffer advances the same map on delivery).
func New(replicaID replicaid.ID, ledger vectorclock.Clock) *Manager {
	return &Manager{replicaID: replicaID, ledger: ledger}
}

// InTransaction reports whether a transaction is currently open, explicit
// or auto-opened.
func (m *Manager) InTransaction() bool {
	return m.depth > 0
}

// NextLamport advances and returns the local Lamport clock for an outgoing
// event.
func (m *Manager) NextLamport() uint64 {
	m.lamport++
	return m.lamport
}

// ObserveLamport folds a received Lamport timestamp into the local clock,
// per the standard Lamport-clock update rule (local := max(local, seen)+1
// will happen on the next NextLamport call; here we only fold in the max).
func (m *Manager) ObserveLamport(seen uint64) {
	if seen > m.lamport {
		m.lamport = seen
	}
}

// Transact runs f with a transaction open, committing exactly once at the
// outermost call. A nested Transact (or an op run while one is already
// open) joins the outermost transaction instead of starting a new one.
// Each op is applied locally by the echo passed to SendOp as SendOp is
// called from within f.
func (m *Manager) Transact(f func() error) (*Committed, error) {
	m.depth++
	if m.depth == 1 {
		m.current = &open{requested: make(map[replicaid.ID]struct{})}
	}

	ferr := f()

	m.depth--
	if m.depth > 0 {
		// A nested call: the outermost Transact commits, not this one.
		return nil, ferr
	}

	cur := m.current
	m.current = nil
	if ferr != nil {
		return nil, ferr
	}
	return m.commit(cur)
}

// SendOp is how a Collab's SendCRDT surfaces into the transaction manager.
// It must be called with a transaction open (Transact opens one implicitly
// for auto-transactions if the caller is a document operating outside an
// explicit Transact — callers implement that by wrapping a bare SendOp
// call in its own Transact).
func (m *Manager) SendOp(path []string, payload []byte, req meta.Request, echo Echo) error {
	if m.current == nil {
		return &collaberr.Usage{Reason: "SendOp called with no open transaction"}
	}
	cur := m.current

	if !cur.opened {
		cur.opened = true
		cur.counter = m.ledger.Get(m.replicaID) + 1
		cur.tracker = meta.NewUsedKeyTracker()
	}
	cur.requested = meta.Union(cur.requested, req.VectorClockKeys)
	cur.wallClock = cur.wallClock || req.WallClockTime
	cur.lamport = cur.lamport || req.LamportTime

	incoming := meta.Incoming{
		SenderID:      m.replicaID,
		SenderCounter: cur.counter,
		VectorClock:   meta.TrackedClock{Clock: m.ledger, Tracker: cur.tracker},
	}
	if err := echo(path, payload, incoming); err != nil {
		return err
	}

	cur.ops = append(cur.ops, wire.Op{Path: path, Payload: payload})
	return nil
}

func (m *Manager) commit(cur *open) (*Committed, error) {
	if cur == nil || len(cur.ops) == 0 {
		return nil, nil
	}

	finalKeys := meta.Union(cur.tracker.Keys(), cur.requested)
	vc := meta.Project(m.ledger, finalKeys)

	tx := &wire.Transaction{
		SenderID:      m.replicaID,
		SenderCounter: cur.counter,
		VectorClock:   vc,
		Ops:           cur.ops,
	}
	if cur.wallClock {
		now := uint64(time.Now().UnixMilli())
		tx.WallClockTime = &now
	}
	if cur.lamport {
		l := m.NextLamport()
		tx.LamportTimestamp = &l
	}

	raw, err := wire.Encode(tx)
	if err != nil {
		return nil, &collaberr.Serialization{Reason: err.Error()}
	}

	m.ledger.Advance(m.replicaID, cur.counter)

	return &Committed{Tx: tx, Raw: raw}, nil
}
