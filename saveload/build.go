package saveload

import (
	"github.com/collabtext/collabrt/collab"
	"github.com/collabtext/collabrt/vectorclock"
)

// BuildTree walks the live Collab tree rooted at root and produces its
// saved-state representation. A Primitive that reports CanGC() is omitted
// entirely; a Composite is never omitted, since interior nodes exist to
// route regardless of whether any descendant currently has state worth
// saving.
func BuildTree(root collab.Collab) (*Tree, error) {
	t, err := buildNode(root)
	if err != nil {
		return nil, err
	}
	if t == nil {
		// The root itself is never a GC-eligible Primitive in practice
		// (documents are rooted at a Composite), but guard against it
		// anyway so Save always has a tree to serialize.
		return &Tree{}, nil
	}
	return t, nil
}

func buildNode(c collab.Collab) (*Tree, error) {
	switch n := c.(type) {
	case collab.Composite:
		t := &Tree{}
		for _, name := range n.Children() {
			child, ok := n.Child(name)
			if !ok {
				continue
			}
			childTree, err := buildNode(child)
			if err != nil {
				return nil, err
			}
			if childTree == nil {
				continue
			}
			t.ChildrenKeys = append(t.ChildrenKeys, name)
			t.Children = append(t.Children, childTree)
		}
		return t, nil
	case collab.Primitive:
		if n.CanGC() {
			return nil, nil
		}
		self, err := n.SavePrimitive()
		if err != nil {
			return nil, err
		}
		return &Tree{Self: self}, nil
	default:
		return &Tree{}, nil
	}
}

// ApplyTree installs a saved Tree (possibly nil for a node the saved state
// never described) onto the live Collab tree rooted at root, calling each
// Primitive's LoadPrimitive with both the local and loaded vector clocks
// so it can resolve conflicts itself — the runtime never merges Collab
// state on its own.
func ApplyTree(root collab.Collab, t *Tree, local, loaded vectorclock.Clock) error {
	lm := collab.LoadMeta{Local: local, Loaded: loaded}
	return applyNode(root, t, lm)
}

func applyNode(c collab.Collab, t *Tree, lm collab.LoadMeta) error {
	switch n := c.(type) {
	case collab.Composite:
		byName := make(map[string]*Tree)
		if t != nil {
			for i, k := range t.ChildrenKeys {
				byName[k] = t.Children[i]
			}
		}
		for _, name := range n.Children() {
			child, ok := n.Child(name)
			if !ok {
				continue
			}
			if err := applyNode(child, byName[name], lm); err != nil {
				return err
			}
		}
		return nil
	case collab.Primitive:
		var self []byte
		if t != nil {
			self = t.Self
		}
		return n.LoadPrimitive(self, lm)
	default:
		return nil
	}
}
