// Package saveload implements the save/load engine: it serializes the
// whole document state — vector clock, causal buffer, and the recursive
// tree of each Collab's own bytes — into a compact blob, and parses one
// back.
package saveload

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"
)

const (
	docFieldVCKeys    = 1
	docFieldVCValues  = 2
	docFieldPending   = 3
	docFieldTree      = 4
	treeFieldSelf     = 1
	treeFieldKey      = 2
	treeFieldChildren = 3
)

// Tree is the recursive saved-state structure: a Collab's own bytes
// (absent for an interior node) plus its named children, in the same
// deterministic order the live tree iterates them. A GC-eligible Primitive
// has no Tree at all: it is left out of its parent's children.
type Tree struct {
	Self         []byte // nil means "this Collab contributed nothing"
	ChildrenKeys []string
	Children     []*Tree
}

// Document is the full saved-state blob: the sender-side vector clock, the
// still-pending causal buffer (as opaque per-transaction bytes), and the
// tree rooted at the document root.
type Document struct {
	VectorClock   vectorclock.Clock
	PendingBuffer [][]byte
	Tree          *Tree
}

// Encode serializes d into its wire bytes.
func Encode(d *Document) ([]byte, error) {
	var b []byte
	for _, site := range d.VectorClock.Sites() {
		b = protowire.AppendTag(b, docFieldVCKeys, protowire.BytesType)
		b = protowire.AppendString(b, site.String())
	}
	for _, site := range d.VectorClock.Sites() {
		b = protowire.AppendTag(b, docFieldVCValues, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d.VectorClock.Get(site)))
	}
	for _, raw := range d.PendingBuffer {
		b = protowire.AppendTag(b, docFieldPending, protowire.BytesType)
		b = protowire.AppendBytes(b, raw)
	}
	if d.Tree != nil {
		treeBytes, err := encodeTree(d.Tree)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, docFieldTree, protowire.BytesType)
		b = protowire.AppendBytes(b, treeBytes)
	}
	return b, nil
}

func encodeTree(t *Tree) ([]byte, error) {
	if len(t.ChildrenKeys) != len(t.Children) {
		return nil, fmt.Errorf("saveload: tree has %d keys but %d children", len(t.ChildrenKeys), len(t.Children))
	}
	var b []byte
	if t.Self != nil {
		b = protowire.AppendTag(b, treeFieldSelf, protowire.BytesType)
		b = protowire.AppendBytes(b, t.Self)
	}
	for i, key := range t.ChildrenKeys {
		childBytes, err := encodeTree(t.Children[i])
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, treeFieldKey, protowire.BytesType)
		b = protowire.AppendString(b, key)
		b = protowire.AppendTag(b, treeFieldChildren, protowire.BytesType)
		b = protowire.AppendBytes(b, childBytes)
	}
	return b, nil
}

// Decode parses wire bytes into a Document.
func Decode(data []byte) (*Document, error) {
	d := &Document{VectorClock: vectorclock.New()}
	var vcKeys []replicaid.ID
	var vcValues []uint32

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("saveload: malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case docFieldVCKeys:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			vcKeys = append(vcKeys, replicaid.ID(s))
			data = data[m:]
		case docFieldVCValues:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			vcValues = append(vcValues, uint32(v))
			data = data[m:]
		case docFieldPending:
			raw, m, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			d.PendingBuffer = append(d.PendingBuffer, raw)
			data = data[m:]
		case docFieldTree:
			raw, m, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			tree, err := decodeTree(raw)
			if err != nil {
				return nil, err
			}
			d.Tree = tree
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("saveload: malformed unknown field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	if len(vcKeys) != len(vcValues) {
		return nil, fmt.Errorf("saveload: inconsistent vcKeys/vcValues lengths (%d vs %d)", len(vcKeys), len(vcValues))
	}
	for i, k := range vcKeys {
		d.VectorClock.Advance(k, vcValues[i])
	}

	return d, nil
}

func decodeTree(data []byte) (*Tree, error) {
	t := &Tree{}
	var pendingKey *string

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("saveload: malformed tree tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case treeFieldSelf:
			raw, m, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			t.Self = raw
			data = data[m:]
		case treeFieldKey:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			pendingKey = &s
			data = data[m:]
		case treeFieldChildren:
			raw, m, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			child, err := decodeTree(raw)
			if err != nil {
				return nil, err
			}
			if pendingKey == nil {
				return nil, fmt.Errorf("saveload: child value with no preceding key")
			}
			t.ChildrenKeys = append(t.ChildrenKeys, *pendingKey)
			t.Children = append(t.Children, child)
			pendingKey = nil
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("saveload: malformed unknown tree field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	return t, nil
}

func consumeString(data []byte, typ protowire.Type) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("saveload: expected bytes-typed field, got %d", typ)
	}
	s, n := protowire.ConsumeString(data)
	if n < 0 {
		return "", 0, fmt.Errorf("saveload: malformed string: %w", protowire.ParseError(n))
	}
	return s, n, nil
}

func consumeBytes(data []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("saveload: expected bytes-typed field, got %d", typ)
	}
	b, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, fmt.Errorf("saveload: malformed bytes: %w", protowire.ParseError(n))
	}
	return b, n, nil
}

func consumeVarint(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("saveload: expected varint-typed field, got %d", typ)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("saveload: malformed varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}
