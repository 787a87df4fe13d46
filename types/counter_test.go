package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabtext/collabrt/meta"
	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/types"
)

func TestCounterAccumulatesPerSender(t *testing.T) {
	c := types.NewCounter("counter", nil, nil)

	require.NoError(t, c.ReceivePrimitive(encodeDelta(t, 5), meta.Incoming{SenderID: replicaid.ID("aaa")}))
	require.NoError(t, c.ReceivePrimitive(encodeDelta(t, 3), meta.Incoming{SenderID: replicaid.ID("bbb")}))
	require.NoError(t, c.ReceivePrimitive(encodeDelta(t, -2), meta.Incoming{SenderID: replicaid.ID("aaa")}))

	assert.Equal(t, int64(6), c.Value())
}

func TestCounterSaveLoadRoundTrip(t *testing.T) {
	c := types.NewCounter("counter", nil, nil)
	require.NoError(t, c.ReceivePrimitive(encodeDelta(t, 5), meta.Incoming{SenderID: replicaid.ID("aaa")}))
	require.NoError(t, c.ReceivePrimitive(encodeDelta(t, 7), meta.Incoming{SenderID: replicaid.ID("bbb")}))

	data, err := c.SavePrimitive()
	require.NoError(t, err)

	fresh := types.NewCounter("counter", nil, nil)
	require.NoError(t, fresh.LoadPrimitive(data, collabLoadMeta()))
	assert.Equal(t, int64(12), fresh.Value())
}

func TestCounterCanGCWhenUntouchedOrZeroed(t *testing.T) {
	c := types.NewCounter("counter", nil, nil)
	assert.True(t, c.CanGC())

	require.NoError(t, c.ReceivePrimitive(encodeDelta(t, 4), meta.Incoming{SenderID: replicaid.ID("aaa")}))
	assert.False(t, c.CanGC())

	require.NoError(t, c.ReceivePrimitive(encodeDelta(t, -4), meta.Incoming{SenderID: replicaid.ID("aaa")}))
	assert.True(t, c.CanGC())
}
