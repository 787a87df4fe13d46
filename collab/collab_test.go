package collab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabtext/collabrt/collab"
	"github.com/collabtext/collabrt/meta"
)

// echoPrimitive is a minimal Primitive used only to exercise the tree.
type echoPrimitive struct {
	collab.Base
	last []byte
}

func newEcho(name string, parent collab.Collab) *echoPrimitive {
	return &echoPrimitive{Base: collab.NewBase(name, parent, nil)}
}

func (e *echoPrimitive) ReceivePrimitive(payload []byte, m meta.Incoming) error {
	e.last = payload
	return nil
}
func (e *echoPrimitive) SavePrimitive() ([]byte, error) { return e.last, nil }
func (e *echoPrimitive) LoadPrimitive(data []byte, lm collab.LoadMeta) error {
	e.last = data
	return nil
}
func (e *echoPrimitive) CanGC() bool { return len(e.last) == 0 }

var _ collab.Primitive = (*echoPrimitive)(nil)

func TestRegisterAndRoute(t *testing.T) {
	root := collab.NewMap("", nil, nil)
	leaf := newEcho("counter", root)
	require.NoError(t, root.RegisterChild("counter", leaf))

	err := root.Receive(collab.ID{"counter"}, []byte("hi"), meta.Incoming{})
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), leaf.last)
}

func TestDuplicateChildNameFails(t *testing.T) {
	root := collab.NewMap("", nil, nil)
	require.NoError(t, root.RegisterChild("x", newEcho("x", root)))
	err := root.RegisterChild("x", newEcho("x", root))
	assert.Error(t, err)
	var dup *collab.DuplicateChildError
	assert.ErrorAs(t, err, &dup)
}

func TestChildrenSortedLexicographically(t *testing.T) {
	root := collab.NewMap("", nil, nil)
	for _, n := range []string{"c", "a", "b"} {
		require.NoError(t, root.RegisterChild(n, newEcho(n, root)))
	}
	assert.Equal(t, []string{"a", "b", "c"}, root.Children())
}

func TestUnknownPathReturnsNotFound(t *testing.T) {
	root := collab.NewMap("", nil, nil)
	_, ok := root.Child("nope")
	assert.False(t, ok)

	err := root.Receive(collab.ID{"nope"}, nil, meta.Incoming{})
	assert.ErrorIs(t, err, collab.ErrNoSuchChild)
}

func TestFrozenChildSilentlyDropsRemoteOps(t *testing.T) {
	root := collab.NewMap("", nil, nil)
	frozen := collab.NewFrozen("deleted", root, nil)
	root.ReplaceChild("deleted", frozen)

	err := root.Receive(collab.ID{"deleted"}, []byte("late op"), meta.Incoming{})
	assert.NoError(t, err)
}

func TestIDOfAndFromID(t *testing.T) {
	root := collab.NewMap("", nil, nil)
	child := collab.NewMap("child", root, nil)
	require.NoError(t, root.RegisterChild("child", child))
	leaf := newEcho("leaf", child)
	require.NoError(t, child.RegisterChild("leaf", leaf))

	assert.Equal(t, collab.ID{"child", "leaf"}, collab.IDOf(leaf))

	got, ok := collab.FromID(root, collab.ID{"child", "leaf"})
	require.True(t, ok)
	assert.Same(t, leaf, got)

	_, ok = collab.FromID(root, collab.ID{"child", "nope"})
	assert.False(t, ok)
}

func TestDynamicChildNameDeterministic(t *testing.T) {
	a := collab.DynamicChildName("aaa", 3, 0)
	b := collab.DynamicChildName("aaa", 3, 0)
	c := collab.DynamicChildName("aaa", 3, 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
