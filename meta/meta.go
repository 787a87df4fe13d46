// Package meta implements the metadata layer: it decides, per transaction,
// which vector-clock entries ride along on the wire, and exposes the full
// metadata envelope to Collabs on receive.
package meta

import (
	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"
)

// Request is what a sub-CRDT asks for when it calls SendCRDT: the set of
// vector-clock keys it wants included regardless of whether it reads them,
// plus whether it wants wall-clock time and/or a Lamport timestamp attached.
type Request struct {
	VectorClockKeys map[replicaid.ID]struct{}
	WallClockTime   bool
	LamportTime     bool
}

// Outgoing is the metadata attached to a transaction about to be sent.
// SenderID and SenderCounter are always present; VectorClock carries only
// the union of explicitly requested keys and keys actually read by any op's
// echoed local apply (the "used keys" set, §4.4) — callers must not assume
// every sender-known key appears here.
type Outgoing struct {
	SenderID      replicaid.ID
	SenderCounter uint32
	VectorClock   vectorclock.Clock
	WallClockTime *uint64
	LamportTime   *uint64
}

// VCReader is the read surface a Collab sees for a transaction's vector
// clock, on both send and receive. On receive it is a plain, complete
// lookup over whatever the sender transmitted. On the sending replica's own
// echoed apply it is instead backed by a TrackedClock, so that whichever
// keys the Collab actually reads are recorded and folded into the
// transaction's wire metadata — this is what lets the metadata layer
// "see" what a Collab reads without the runtime inspecting Collab
// internals.
type VCReader interface {
	Get(replicaid.ID) uint32
}

// Incoming is the metadata exposed to a Collab on receive or on its own
// send-time echo. VectorClock may yield zero for keys the sender never read
// or transmitted; Collabs must treat an absent/zero entry as "possibly
// incorrect 0", not as proof the sender never heard from that replica.
type Incoming struct {
	SenderID      replicaid.ID
	SenderCounter uint32
	VectorClock   VCReader
	WallClockTime *uint64
	LamportTime   *uint64
}

// UsedKeyTracker accumulates the set of vector-clock keys actually read by a
// Collab while its own op is echoed locally inside the sending transaction.
// The transaction manager creates one per open transaction and wraps the
// sender's clock in a TrackedClock bound to it before calling the Collab's
// ReceivePrimitive for the local echo.
type UsedKeyTracker struct {
	used map[replicaid.ID]struct{}
}

// NewUsedKeyTracker returns an empty tracker.
func NewUsedKeyTracker() *UsedKeyTracker {
	return &UsedKeyTracker{used: make(map[replicaid.ID]struct{})}
}

// TrackedClock wraps a Clock so that every Get call is recorded in Tracker,
// in addition to returning the looked-up value.
type TrackedClock struct {
	Clock   vectorclock.Clock
	Tracker *UsedKeyTracker
}

// Get returns the value for id, recording id as used.
func (t TrackedClock) Get(id replicaid.ID) uint32 {
	t.Tracker.used[id] = struct{}{}
	return t.Clock.Get(id)
}

// Keys returns the accumulated set of used keys.
func (t *UsedKeyTracker) Keys() map[replicaid.ID]struct{} {
	return t.used
}

// Union merges an explicit request's vector-clock keys into a used-keys
// set, returning the combined set. Neither input is mutated.
func Union(used map[replicaid.ID]struct{}, requested map[replicaid.ID]struct{}) map[replicaid.ID]struct{} {
	out := make(map[replicaid.ID]struct{}, len(used)+len(requested))
	for k := range used {
		out[k] = struct{}{}
	}
	for k := range requested {
		out[k] = struct{}{}
	}
	return out
}

// Project returns the subset of full restricted to keys, as an independent
// clock safe to embed in a wire transaction.
func Project(full vectorclock.Clock, keys map[replicaid.ID]struct{}) vectorclock.Clock {
	out := vectorclock.New()
	for k := range keys {
		if v := full.Get(k); v != 0 {
			out.Advance(k, v)
		}
	}
	return out
}

// PlainReader adapts a vectorclock.Clock to VCReader without tracking,
// used for the receive path where every transmitted entry is already the
// complete set the sender chose to reveal.
type PlainReader struct {
	Clock vectorclock.Clock
}

// Get returns the value for id directly from the wrapped clock.
func (p PlainReader) Get(id replicaid.ID) uint32 {
	return p.Clock.Get(id)
}
