package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabtext/collabrt/meta"
	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/types"
)

func TestRegisterUnsetHasNoValue(t *testing.T) {
	r := types.NewRegister("name", nil, nil)
	_, ok := r.Value()
	assert.False(t, ok)
	assert.True(t, r.CanGC())
}

func TestRegisterNewerWallClockWins(t *testing.T) {
	r := types.NewRegister("name", nil, nil)
	early := uint64(100)
	late := uint64(200)

	require.NoError(t, r.ReceivePrimitive([]byte("first"), meta.Incoming{
		SenderID: replicaid.ID("aaa"), WallClockTime: &early,
	}))
	require.NoError(t, r.ReceivePrimitive([]byte("second"), meta.Incoming{
		SenderID: replicaid.ID("bbb"), WallClockTime: &late,
	}))

	v, ok := r.Value()
	require.True(t, ok)
	assert.Equal(t, "second", string(v))

	// A stale write that arrives after the fact must not unwind the winner.
	require.NoError(t, r.ReceivePrimitive([]byte("stale"), meta.Incoming{
		SenderID: replicaid.ID("ccc"), WallClockTime: &early,
	}))
	v, _ = r.Value()
	assert.Equal(t, "second", string(v))
}

func TestRegisterTiesBreakOnSenderID(t *testing.T) {
	ts := uint64(100)

	r1 := types.NewRegister("name", nil, nil)
	require.NoError(t, r1.ReceivePrimitive([]byte("from-aaa"), meta.Incoming{SenderID: replicaid.ID("aaa"), WallClockTime: &ts}))
	require.NoError(t, r1.ReceivePrimitive([]byte("from-bbb"), meta.Incoming{SenderID: replicaid.ID("bbb"), WallClockTime: &ts}))
	v1, _ := r1.Value()

	// Same two writes delivered in the opposite order must converge on the
	// same winner regardless of arrival order, since the tie-break is a
	// property of the writes themselves, not of delivery order.
	r2 := types.NewRegister("name", nil, nil)
	require.NoError(t, r2.ReceivePrimitive([]byte("from-bbb"), meta.Incoming{SenderID: replicaid.ID("bbb"), WallClockTime: &ts}))
	require.NoError(t, r2.ReceivePrimitive([]byte("from-aaa"), meta.Incoming{SenderID: replicaid.ID("aaa"), WallClockTime: &ts}))
	v2, _ := r2.Value()

	assert.Equal(t, v1, v2)
	assert.Equal(t, "from-bbb", string(v1)) // "bbb" > "aaa" lexicographically
}

func TestRegisterReceiveWithoutWallClockTimeErrors(t *testing.T) {
	r := types.NewRegister("name", nil, nil)
	err := r.ReceivePrimitive([]byte("x"), meta.Incoming{SenderID: replicaid.ID("aaa")})
	assert.Error(t, err)
}

func TestRegisterSaveLoadReconcilesRatherThanOverwrites(t *testing.T) {
	late := uint64(200)
	r := types.NewRegister("name", nil, nil)
	require.NoError(t, r.ReceivePrimitive([]byte("winner"), meta.Incoming{SenderID: replicaid.ID("zzz"), WallClockTime: &late}))

	data, err := r.SavePrimitive()
	require.NoError(t, err)

	// A replica that already holds a strictly newer write must not be
	// clobbered by loading an older save.
	other := types.NewRegister("name", nil, nil)
	evenLater := uint64(300)
	require.NoError(t, other.ReceivePrimitive([]byte("already-newer"), meta.Incoming{SenderID: replicaid.ID("aaa"), WallClockTime: &evenLater}))
	require.NoError(t, other.LoadPrimitive(data, collabLoadMeta()))

	v, _ := other.Value()
	assert.Equal(t, "already-newer", string(v))
}
