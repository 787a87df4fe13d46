package collab

import (
	"errors"

	"github.com/collabtext/collabrt/meta"
)

// ErrNoSuchChild is returned by Map.Receive when a path names no live
// child; the runtime layer wraps it into a collaberr.SchemaMismatch that
// carries the offending (senderID, senderCounter, path).
var ErrNoSuchChild = errors.New("collab: no such child")

// Base is the embeddable identity shared by every Collab implementation:
// its edge label, its parent, and the runtime handle it sends through.
// Concrete Primitive/Composite types embed Base and add their own state.
type Base struct {
	name    string
	parent  Collab
	runtime Runtime
}

// NewBase constructs the identity fields for a node being registered under
// parent (nil for the root) with the given edge label.
func NewBase(name string, parent Collab, rt Runtime) Base {
	return Base{name: name, parent: parent, runtime: rt}
}

func (b *Base) Name() string   { return b.name }
func (b *Base) Parent() Collab { return b.parent }
func (b *Base) Runtime() Runtime {
	return b.runtime
}

// ID recomputes the root-to-node path from Name/Parent rather than caching
// it, so a node's address always reflects its current position in the
// tree (the tree never actually moves nodes, but recomputation keeps the
// contract obviously correct).
func (b *Base) ID() ID {
	if b.parent == nil {
		return ID{}
	}
	return b.parent.ID().Child(b.name)
}

// Map is a reusable Composite implementation: a named, lexicographically
// iterated map of children. Collection-style Collabs embed Map and add
// their own factory logic for dynamic children on top of it.
type Map struct {
	Base
	children map[string]Collab
	order    []string // kept sorted for deterministic iteration across saves
}

// NewMap constructs an empty composite node.
func NewMap(name string, parent Collab, rt Runtime) *Map {
	return &Map{
		Base:     NewBase(name, parent, rt),
		children: make(map[string]Collab),
	}
}

// RegisterChild attaches child under name. Registering two children under
// the same name within one parent is a fatal programmer error: the caller
// must check Child(name) first if duplicate registration is possible (e.g.
// during schema setup that might run twice).
func (m *Map) RegisterChild(name string, child Collab) error {
	if _, exists := m.children[name]; exists {
		return &DuplicateChildError{Parent: m.ID(), Name: name}
	}
	m.children[name] = child
	m.insertSorted(name)
	return nil
}

// ReplaceChild swaps the child registered under name (used to install a
// Frozen placeholder over a deleted dynamic child — never to restore a
// deleted child, which is not supported). If name was not previously
// registered, it is inserted.
func (m *Map) ReplaceChild(name string, child Collab) {
	if _, exists := m.children[name]; !exists {
		m.insertSorted(name)
	}
	m.children[name] = child
}

func (m *Map) insertSorted(name string) {
	i := 0
	for ; i < len(m.order); i++ {
		if m.order[i] > name {
			break
		}
	}
	m.order = append(m.order, "")
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = name
}

// Child returns the named child, or false if it was never registered.
func (m *Map) Child(name string) (Collab, bool) {
	c, ok := m.children[name]
	return c, ok
}

// Children returns the registered names in lexicographic order.
func (m *Map) Children() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Receive routes payload to the child named by path's first element,
// stripping it before recursing into a Composite child or delivering to a
// Primitive leaf. An empty path or an unknown child name is reported as
// ErrNoSuchChild, which the runtime translates into a SchemaMismatch.
func (m *Map) Receive(path ID, payload []byte, m2 meta.Incoming) error {
	if len(path) == 0 {
		return ErrNoSuchChild
	}
	child, ok := m.Child(path[0])
	if !ok {
		return ErrNoSuchChild
	}
	rest := path[1:]
	switch c := child.(type) {
	case Composite:
		return c.Receive(rest, payload, m2)
	case Primitive:
		if len(rest) != 0 {
			return ErrNoSuchChild
		}
		return c.ReceivePrimitive(payload, m2)
	default:
		return ErrNoSuchChild
	}
}

// DuplicateChildError is a collaberr.Usage-class fatal programmer error:
// registering two children with the same name under one parent.
type DuplicateChildError struct {
	Parent ID
	Name   string
}

var _ Composite = (*Map)(nil)

func (e *DuplicateChildError) Error() string {
	return "duplicate child name " + e.Name + " under " + e.Parent.String()
}
