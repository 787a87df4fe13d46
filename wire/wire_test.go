package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"
	"github.com/collabtext/collabrt/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vc := vectorclock.New()
	vc.Advance("bbb", 4)
	vc.Advance("ccc", 7)

	wall := uint64(1234567890)
	lamport := uint64(42)
	maximal := uint32(2)

	tx := &wire.Transaction{
		SenderID:          replicaid.ID("aaa"),
		SenderCounter:     9,
		VectorClock:       vc,
		MaximalVCKeyCount: &maximal,
		WallClockTime:     &wall,
		LamportTimestamp:  &lamport,
		Ops: []wire.Op{
			{Path: []string{"root", "counter"}, Payload: []byte{1, 2, 3}},
			{Path: []string{"root", "text"}, Payload: []byte("hello")},
		},
	}

	data, err := wire.Encode(tx)
	require.NoError(t, err)

	got, err := wire.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, tx.SenderID, got.SenderID)
	assert.Equal(t, tx.SenderCounter, got.SenderCounter)
	assert.Equal(t, uint32(4), got.VectorClock.Get("bbb"))
	assert.Equal(t, uint32(7), got.VectorClock.Get("ccc"))
	require.NotNil(t, got.MaximalVCKeyCount)
	assert.Equal(t, maximal, *got.MaximalVCKeyCount)
	require.NotNil(t, got.WallClockTime)
	assert.Equal(t, wall, *got.WallClockTime)
	require.NotNil(t, got.LamportTimestamp)
	assert.Equal(t, lamport, *got.LamportTimestamp)
	require.Len(t, got.Ops, 2)
	assert.Equal(t, tx.Ops[0], got.Ops[0])
	assert.Equal(t, tx.Ops[1], got.Ops[1])
}

func TestEncodeRejectsEmptyOps(t *testing.T) {
	_, err := wire.Encode(&wire.Transaction{SenderID: "aaa", SenderCounter: 1, VectorClock: vectorclock.New()})
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedBytes(t *testing.T) {
	_, err := wire.Decode([]byte{0xff})
	assert.Error(t, err)
}

func TestDecodeRejectsMismatchedVCKeyValueCounts(t *testing.T) {
	vc := vectorclock.New()
	vc.Advance("bbb", 4)
	tx := &wire.Transaction{
		SenderID:      "aaa",
		SenderCounter: 1,
		VectorClock:   vc,
		Ops:           []wire.Op{{Path: []string{"x"}, Payload: []byte("y")}},
	}
	data, err := wire.Encode(tx)
	require.NoError(t, err)

	// The well-formed encoding decodes; appending one more vcKeys entry
	// (field 3) with no matching vcValues entry must be rejected.
	_, err = wire.Decode(data)
	require.NoError(t, err)

	corrupted := protowire.AppendTag(append([]byte(nil), data...), 3, protowire.BytesType)
	corrupted = protowire.AppendString(corrupted, "ccc")
	_, err = wire.Decode(corrupted)
	assert.Error(t, err)
}
