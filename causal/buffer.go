// Package causal implements the causal buffer: it holds received
// transactions until they are causally ready to apply, then releases them
// in a deterministic (if not the only valid) linearization.
package causal

import (
	"sort"

	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"
	"github.com/collabtext/collabrt/wire"
)

// key identifies a buffered transaction by its sender and counter, the pair
// the ready predicate and duplicate-detection both key off of.
type key struct {
	sender  replicaid.ID
	counter uint32
}

// Entry is a causal buffer entry: a received, not-yet-applied transaction
// together with its raw wire bytes (kept so Save can serialize the buffer
// verbatim without re-encoding).
type Entry struct {
	Tx  *wire.Transaction
	Raw []byte
}

// Apply is called once per transaction, in the buffer's tie-broken order,
// when that transaction becomes causally ready. Returning a non-nil error
// quarantines the transaction: it is NOT applied and the ledger is left
// unchanged.
type Apply func(e Entry) error

// Buffer holds pending transactions and releases them against a clock it
// shares with the caller (the document's single vector-clock ledger).
type Buffer struct {
	clock      vectorclock.Clock
	pending    map[key]Entry
	quarantine map[key]Entry
}

// New constructs a buffer backed by clock. clock is mutated in place as
// transactions are delivered; the Buffer never takes its own copy since
// the runtime's single-threaded model guarantees no concurrent access.
func New(clock vectorclock.Clock) *Buffer {
	return &Buffer{
		clock:      clock,
		pending:    make(map[key]Entry),
		quarantine: make(map[key]Entry),
	}
}

// Len reports the number of transactions currently held pending (not yet
// ready, or ready but quarantined after a failed apply).
func (b *Buffer) Len() int {
	return len(b.pending) + len(b.quarantine)
}

// QuarantineLen reports the number of transactions currently quarantined
// after a failed apply, a subset of what Len reports.
func (b *Buffer) QuarantineLen() int {
	return len(b.quarantine)
}

// Deliver adds tx to the buffer (or drops it silently if already applied),
// then repeatedly scans for ready transactions and calls apply for each, in
// ascending (senderID, senderCounter) order among those ready in the same
// scan, until no further transaction in the buffer is ready. It returns the
// list of transactions actually applied, in application order, for the
// caller to use when deciding how many Update events to emit.
func (b *Buffer) Deliver(tx *wire.Transaction, raw []byte, apply Apply) ([]Entry, error) {
	sender, counter := tx.SenderID, tx.SenderCounter
	k := key{sender, counter}

	if counter <= b.clock.Get(sender) {
		// Already applied: duplicate delivery, dropped silently.
		return nil, nil
	}
	if _, quarantined := b.quarantine[k]; quarantined {
		// A redelivered quarantined transaction is folded back into
		// pending so the scan below re-attempts it; if it fails again it
		// returns to quarantine.
		delete(b.quarantine, k)
	}
	b.pending[k] = Entry{Tx: tx, Raw: raw}

	return b.drain(apply)
}

// Retry re-attempts every quarantined transaction, used after a Load or a
// new child registration: quarantine is retried, never dropped
// permanently.
func (b *Buffer) Retry(apply Apply) ([]Entry, error) {
	for k, e := range b.quarantine {
		delete(b.quarantine, k)
		b.pending[k] = e
	}
	return b.drain(apply)
}

func (b *Buffer) drain(apply Apply) ([]Entry, error) {
	var applied []Entry
	for {
		ready := b.readyBatch()
		if len(ready) == 0 {
			return applied, nil
		}
		for _, k := range ready {
			e := b.pending[k]
			if err := apply(e); err != nil {
				delete(b.pending, k)
				b.quarantine[k] = e
				return applied, err
			}
			delete(b.pending, k)
			b.clock.Advance(k.sender, k.counter)
			applied = append(applied, e)
		}
	}
}

// readyBatch returns the keys of every currently-buffered transaction that
// satisfies the ready predicate against the current clock, sorted by the
// frozen tie-break (ascending senderID, then senderCounter). Each scan
// pass may surface more than one ready transaction if several senders'
// heads are all ready at once.
func (b *Buffer) readyBatch() []key {
	var ready []key
	for k, e := range b.pending {
		if b.isReady(k, e.Tx) {
			ready = append(ready, k)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].sender != ready[j].sender {
			return ready[i].sender < ready[j].sender
		}
		return ready[i].counter < ready[j].counter
	})
	return ready
}

// isReady implements the ready predicate: T is ready at R iff
// R.vc[T.sender] = T.counter-1 and for every other key k in T.vc,
// R.vc[k] >= T.vc[k].
func (b *Buffer) isReady(k key, tx *wire.Transaction) bool {
	if b.clock.Get(k.sender) != k.counter-1 {
		return false
	}
	for _, site := range tx.VectorClock.Sites() {
		if site == k.sender {
			continue
		}
		if b.clock.Get(site) < tx.VectorClock.Get(site) {
			return false
		}
	}
	return true
}

// PendingForSave returns every currently buffered (non-quarantined as well
// as quarantined) transaction's raw bytes, in an order stable enough for a
// byte-identical Save() given identical state — sorted by (sender,
// counter).
func (b *Buffer) PendingForSave() [][]byte {
	type item struct {
		k   key
		raw []byte
	}
	var items []item
	for k, e := range b.pending {
		items = append(items, item{k, e.Raw})
	}
	for k, e := range b.quarantine {
		items = append(items, item{k, e.Raw})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].k.sender != items[j].k.sender {
			return items[i].k.sender < items[j].k.sender
		}
		return items[i].k.counter < items[j].k.counter
	})
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = it.raw
	}
	return out
}
