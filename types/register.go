package types

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/collabtext/collabrt/collab"
	"github.com/collabtext/collabrt/meta"
	"github.com/collabtext/collabrt/replicaid"
)

const (
	registerFieldSet      = 1
	registerFieldValue    = 2
	registerFieldWallMs   = 3
	registerFieldSenderID = 4
)

// Register is a last-writer-wins register: every Set requests a wall-clock
// timestamp, and concurrent writes are resolved by comparing that
// timestamp, then, on an exact tie, by comparing senderID so every replica
// reaches the same winner regardless of delivery order.
type Register struct {
	collab.Base
	value     []byte
	wallClock uint64
	senderID  replicaid.ID
	set       bool
}

// NewRegister constructs an unset register.
func NewRegister(name string, parent collab.Collab, rt collab.Runtime) *Register {
	return &Register{Base: collab.NewBase(name, parent, rt)}
}

// Value returns the register's current winning value, or (nil, false) if
// it has never been set by any replica.
func (r *Register) Value() ([]byte, bool) {
	if !r.set {
		return nil, false
	}
	return r.value, true
}

// Set writes value, requesting a wall-clock timestamp for conflict
// resolution against concurrent writers.
func (r *Register) Set(value []byte) error {
	rt := r.Runtime()
	if rt == nil {
		return fmt.Errorf("types: register %s has no runtime attached", r.ID())
	}
	return rt.SendCRDT(r, value, meta.Request{WallClockTime: true})
}

// ReceivePrimitive installs payload as the register's value if it wins
// against whatever is currently held, per the last-writer-wins rule.
func (r *Register) ReceivePrimitive(payload []byte, m meta.Incoming) error {
	if m.WallClockTime == nil {
		return fmt.Errorf("types: register op from %s#%d carries no wall-clock time", m.SenderID, m.SenderCounter)
	}
	r.considerWrite(payload, *m.WallClockTime, m.SenderID)
	return nil
}

// considerWrite installs (value, wallClock, senderID) as the register's
// state if it is strictly newer, or ties on wall-clock time and wins the
// senderID tie-break.
func (r *Register) considerWrite(value []byte, wallClock uint64, senderID replicaid.ID) {
	if r.set {
		if wallClock < r.wallClock {
			return
		}
		if wallClock == r.wallClock && senderID <= r.senderID {
			return
		}
	}
	r.value = append([]byte(nil), value...)
	r.wallClock = wallClock
	r.senderID = senderID
	r.set = true
}

// SavePrimitive encodes the register's current winning state, or nothing
// if it was never set.
func (r *Register) SavePrimitive() ([]byte, error) {
	if !r.set {
		return nil, nil
	}
	var b []byte
	b = protowire.AppendTag(b, registerFieldSet, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, registerFieldValue, protowire.BytesType)
	b = protowire.AppendBytes(b, r.value)
	b = protowire.AppendTag(b, registerFieldWallMs, protowire.VarintType)
	b = protowire.AppendVarint(b, r.wallClock)
	b = protowire.AppendTag(b, registerFieldSenderID, protowire.BytesType)
	b = protowire.AppendString(b, r.senderID.String())
	return b, nil
}

// LoadPrimitive reconciles the saved state against whatever is already in
// memory using the same last-writer-wins rule ReceivePrimitive uses,
// rather than blindly overwriting — a loaded save is just another writer
// that may or may not win.
func (r *Register) LoadPrimitive(data []byte, lm collab.LoadMeta) error {
	if len(data) == 0 {
		return nil
	}

	var value []byte
	var wallClock uint64
	var senderID replicaid.ID
	var sawValue, sawWallMs, sawSenderID bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("types: malformed register save: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case registerFieldSet:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return fmt.Errorf("types: malformed register set flag: %w", protowire.ParseError(m))
			}
			data = data[m:]
		case registerFieldValue:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return fmt.Errorf("types: malformed register value: %w", protowire.ParseError(m))
			}
			value = b
			sawValue = true
			data = data[m:]
		case registerFieldWallMs:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return fmt.Errorf("types: malformed register wall-clock time: %w", protowire.ParseError(m))
			}
			wallClock = v
			sawWallMs = true
			data = data[m:]
		case registerFieldSenderID:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return fmt.Errorf("types: malformed register senderID: %w", protowire.ParseError(m))
			}
			senderID = replicaid.ID(s)
			sawSenderID = true
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return fmt.Errorf("types: malformed unknown register field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	if !sawValue || !sawWallMs || !sawSenderID {
		return fmt.Errorf("types: incomplete register save")
	}
	r.considerWrite(value, wallClock, senderID)
	return nil
}

// CanGC reports true for a register that has never been set.
func (r *Register) CanGC() bool {
	return !r.set
}

var _ collab.Primitive = (*Register)(nil)
