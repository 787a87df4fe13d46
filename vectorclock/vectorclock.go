// Package vectorclock implements the applied-transactions ledger: a map from
// sender replica ID to the highest counter that replica has applied from
// that sender.
package vectorclock

import (
	"sort"

	"github.com/collabtext/collabrt/replicaid"
)

// Clock maps a senderID to the highest senderCounter applied so far. A
// missing entry is equivalent to 0.
type Clock map[replicaid.ID]uint32

// New returns an empty clock.
func New() Clock {
	return make(Clock)
}

// Get returns the counter recorded for senderID, or 0 if absent.
func (c Clock) Get(senderID replicaid.ID) uint32 {
	return c[senderID]
}

// Advance records that senderID's counter has reached counter. It sets the
// entry without checking it: on the document's ledger the causal buffer
// and the transaction manager only ever advance a sender by one
// (counter == c.Get(senderID)+1), while clocks rebuilt from decoded or
// projected entries use it to set arbitrary values.
func (c Clock) Advance(senderID replicaid.ID, counter uint32) {
	c[senderID] = counter
}

// Snapshot returns an independent copy of the clock, safe to retain after
// the ledger continues mutating.
func (c Clock) Snapshot() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MergeMax advances every entry of c to the element-wise max of c and
// other. Used only during Load, where a saved vector clock may describe
// senders the local replica has never directly heard from.
func (c Clock) MergeMax(other Clock) {
	for k, v := range other {
		if v > c[k] {
			c[k] = v
		}
	}
}

// Descends reports whether c has applied everything other has, i.e. for
// every key in other, c's counter is at least as high.
func (c Clock) Descends(other Clock) bool {
	for k, v := range other {
		if c[k] < v {
			return false
		}
	}
	return true
}

// Sites returns the clock's keys in a deterministic, sorted order, used
// wherever stable iteration is required (e.g. serializing the wire clock).
func (c Clock) Sites() []replicaid.ID {
	out := make([]replicaid.ID, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
