// Package types provides a small set of ready-made Primitives — a
// grow-or-shrink counter and a last-writer-wins register — built on the
// collab runtime, the way a document schema would normally add its own
// leaf CRDTs.
package types

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/collabtext/collabrt/collab"
	"github.com/collabtext/collabrt/meta"
)

const (
	counterFieldSender = 1
	counterFieldDelta  = 2
)

// Counter is a PN-counter: each replica contributes its own running total,
// and the counter's value is the sum across all replicas. Concurrent Add
// calls from different replicas always commute, so Counter never needs to
// read the vector clock or request metadata beyond the bare op.
type Counter struct {
	collab.Base
	totals map[string]int64 // keyed by replicaID.String()
}

// NewCounter constructs a zero-valued counter registered under name.
func NewCounter(name string, parent collab.Collab, rt collab.Runtime) *Counter {
	return &Counter{
		Base:   collab.NewBase(name, parent, rt),
		totals: make(map[string]int64),
	}
}

// Value returns the counter's current sum across every replica.
func (c *Counter) Value() int64 {
	var total int64
	for _, v := range c.totals {
		total += v
	}
	return total
}

// Add contributes delta to this replica's own running total and sends the
// op. delta may be negative.
func (c *Counter) Add(delta int64) error {
	rt := c.Runtime()
	if rt == nil {
		return fmt.Errorf("types: counter %s has no runtime attached", c.ID())
	}
	payload := protowire.AppendVarint(nil, protowire.EncodeZigZag(delta))
	return rt.SendCRDT(c, payload, meta.Request{})
}

// ReceivePrimitive applies a local echo or a remote delta to the sending
// replica's own running total.
func (c *Counter) ReceivePrimitive(payload []byte, m meta.Incoming) error {
	v, n := protowire.ConsumeVarint(payload)
	if n < 0 {
		return fmt.Errorf("types: malformed counter op: %w", protowire.ParseError(n))
	}
	c.totals[m.SenderID.String()] += protowire.DecodeZigZag(v)
	return nil
}

// SavePrimitive encodes every non-zero per-replica total as repeated
// (senderID, delta) pairs.
func (c *Counter) SavePrimitive() ([]byte, error) {
	var b []byte
	for id, total := range c.totals {
		if total == 0 {
			continue
		}
		b = protowire.AppendTag(b, counterFieldSender, protowire.BytesType)
		b = protowire.AppendString(b, id)
		b = protowire.AppendTag(b, counterFieldDelta, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(total))
	}
	return b, nil
}

// LoadPrimitive replaces the in-memory totals with the saved ones. Since
// each replica's slot is independently authoritative (no two replicas ever
// write the same slot), there is nothing to reconcile against the local
// vector clock — loaded state simply wins.
func (c *Counter) LoadPrimitive(data []byte, lm collab.LoadMeta) error {
	totals := make(map[string]int64)
	var pendingSender *string

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("types: malformed counter save: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case counterFieldSender:
			if typ != protowire.BytesType {
				return fmt.Errorf("types: counter sender field has wrong wire type %d", typ)
			}
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return fmt.Errorf("types: malformed counter sender: %w", protowire.ParseError(m))
			}
			pendingSender = &s
			data = data[m:]
		case counterFieldDelta:
			if typ != protowire.VarintType {
				return fmt.Errorf("types: counter delta field has wrong wire type %d", typ)
			}
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return fmt.Errorf("types: malformed counter delta: %w", protowire.ParseError(m))
			}
			if pendingSender == nil {
				return fmt.Errorf("types: counter delta with no preceding sender")
			}
			totals[*pendingSender] = protowire.DecodeZigZag(v)
			pendingSender = nil
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return fmt.Errorf("types: malformed unknown counter field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	c.totals = totals
	return nil
}

// CanGC reports true when every replica's total sums to zero (the initial
// state, or a state indistinguishable from it), so an untouched counter
// contributes nothing to Save output.
func (c *Counter) CanGC() bool {
	return c.Value() == 0
}

var _ collab.Primitive = (*Counter)(nil)
