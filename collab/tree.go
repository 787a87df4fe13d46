package collab

// FromID walks the tree from root following id's path elements, returning
// the addressed Collab. It returns false for a path that never existed
// (no child of that name at some step) and true with a Frozen value for a
// path whose leaf has been deleted but still has a placeholder registered.
func FromID(root Composite, id ID) (Collab, bool) {
	var cur Collab = root
	for _, name := range id {
		composite, ok := cur.(Composite)
		if !ok {
			return nil, false
		}
		child, ok := composite.Child(name)
		if !ok {
			return nil, false
		}
		cur = child
	}
	return cur, true
}

// IDOf recomputes c's path by walking its Parent chain to the root. It
// never queries a Tree/root value directly: a Collab's address is
// intrinsic to its own position.
func IDOf(c Collab) ID {
	return c.ID()
}
