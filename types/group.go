package types

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/collabtext/collabrt/collab"
	"github.com/collabtext/collabrt/meta"
)

const (
	groupFieldKind = 1
	groupFieldName = 2
)

const (
	groupOpCreate = 0
	groupOpDelete = 1
)

// Group is a dynamic collection of Registers: items can be added at any
// time and later removed, with every replica naming a newly created item
// identically and freezing a removed one rather than deleting it outright.
// It is the runtime's worked example of a dynamic collection — the
// counterpart to Counter and Register, which are both fixed, schema-time
// Primitives.
type Group struct {
	collab.Map
	lastCreated *Register
}

// NewGroup constructs an empty group registered under name.
func NewGroup(name string, parent collab.Collab, rt collab.Runtime) *Group {
	return &Group{Map: *collab.NewMap(name, parent, rt)}
}

// Add creates a new item and returns it, ready for the caller to Set its
// value. The item's name is derived from this op's (senderID,
// senderCounter), so every replica that applies the same creating op names
// it identically.
func (g *Group) Add() (*Register, error) {
	rt := g.Runtime()
	if rt == nil {
		return nil, fmt.Errorf("types: group %s has no runtime attached", g.ID())
	}
	if err := rt.SendCRDT(g, encodeGroupCreate(), meta.Request{}); err != nil {
		return nil, err
	}
	return g.lastCreated, nil
}

// Remove freezes name, so a concurrent remote edit to the same item is
// dropped instead of erroring, and a later local op against it fails fast.
// Removing an unknown name returns an error; removing an already-removed
// name succeeds and replaces its placeholder with a fresh Frozen one.
func (g *Group) Remove(name string) error {
	rt := g.Runtime()
	if rt == nil {
		return fmt.Errorf("types: group %s has no runtime attached", g.ID())
	}
	if _, ok := g.Child(name); !ok {
		return fmt.Errorf("types: group %s has no item %q", g.ID(), name)
	}
	return rt.SendCRDT(g, encodeGroupDelete(name), meta.Request{})
}

// Receive routes a message addressed below this group to the named item;
// a message addressed at the group itself (an empty remaining path) is a
// create or delete command rather than an item edit.
func (g *Group) Receive(path collab.ID, payload []byte, m meta.Incoming) error {
	if len(path) == 0 {
		return g.applyCommand(payload, m)
	}
	return g.Map.Receive(path, payload, m)
}

// ReceivePrimitive applies this group's own synchronous local echo. Group
// is both a Composite (routing edits to its items) and a Primitive (so it
// can send its own create/delete commands through SendCRDT); SavePrimitive,
// LoadPrimitive, and CanGC below are never consulted, since the Collab
// tree's save/load walk always prefers a node's Composite side when both
// are implemented.
func (g *Group) ReceivePrimitive(payload []byte, m meta.Incoming) error {
	return g.applyCommand(payload, m)
}

func (g *Group) SavePrimitive() ([]byte, error) { return nil, nil }
func (g *Group) LoadPrimitive([]byte, collab.LoadMeta) error { return nil }
func (g *Group) CanGC() bool { return false }

func (g *Group) applyCommand(payload []byte, m meta.Incoming) error {
	kind, name, err := decodeGroupOp(payload)
	if err != nil {
		return err
	}

	switch kind {
	case groupOpCreate:
		rt := g.Runtime()
		child, err := rt.RegisterDynamicChild(g, m.SenderID, m.SenderCounter, 0, func(childName string) collab.Collab {
			return NewRegister(childName, g, rt)
		})
		if err != nil {
			return err
		}
		g.lastCreated = child.(*Register)
		return nil

	case groupOpDelete:
		if _, ok := g.Child(name); !ok {
			// No item of that name exists here, so there is nothing to
			// freeze. An already-frozen item is found above and simply
			// gets a fresh placeholder.
			return nil
		}
		g.ReplaceChild(name, collab.NewFrozen(name, g, g.Runtime()))
		return nil

	default:
		return fmt.Errorf("types: unknown group op kind %d", kind)
	}
}

func encodeGroupCreate() []byte {
	var b []byte
	b = protowire.AppendTag(b, groupFieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, groupOpCreate)
	return b
}

func encodeGroupDelete(name string) []byte {
	var b []byte
	b = protowire.AppendTag(b, groupFieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, groupOpDelete)
	b = protowire.AppendTag(b, groupFieldName, protowire.BytesType)
	b = protowire.AppendString(b, name)
	return b
}

func decodeGroupOp(data []byte) (kind uint64, name string, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, "", fmt.Errorf("types: malformed group op tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case groupFieldKind:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return 0, "", fmt.Errorf("types: malformed group op kind: %w", protowire.ParseError(m))
			}
			kind = v
			data = data[m:]
		case groupFieldName:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return 0, "", fmt.Errorf("types: malformed group op name: %w", protowire.ParseError(m))
			}
			name = s
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return 0, "", fmt.Errorf("types: malformed unknown group op field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return kind, name, nil
}

var _ collab.Composite = (*Group)(nil)
var _ collab.Primitive = (*Group)(nil)
