package txn_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabtext/collabrt/meta"
	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"

	"github.com/collabtext/collabrt/txn"
)

func TestSingleOpTransactionCommits(t *testing.T) {
	ledger := vectorclock.New()
	m := txn.New(replicaid.ID("aaa"), ledger)

	var echoed []byte
	committed, err := m.Transact(func() error {
		return m.SendOp([]string{"counter"}, []byte("x"), meta.Request{}, func(path []string, payload []byte, in meta.Incoming) error {
			echoed = payload
			assert.Equal(t, uint32(1), in.SenderCounter)
			return nil
		})
	})
	require.NoError(t, err)
	require.NotNil(t, committed)
	assert.Equal(t, []byte("x"), echoed)
	assert.Equal(t, uint32(1), committed.Tx.SenderCounter)
	assert.Equal(t, uint32(1), ledger.Get("aaa"))
}

func TestEmptyTransactionEmitsNothing(t *testing.T) {
	ledger := vectorclock.New()
	m := txn.New(replicaid.ID("aaa"), ledger)

	committed, err := m.Transact(func() error { return nil })
	require.NoError(t, err)
	assert.Nil(t, committed)
	assert.Equal(t, uint32(0), ledger.Get("aaa"))
}

func TestNestedTransactionsJoinOutermostAndEmitOnce(t *testing.T) {
	ledger := vectorclock.New()
	m := txn.New(replicaid.ID("aaa"), ledger)

	echo := func(path []string, payload []byte, in meta.Incoming) error { return nil }

	committed, err := m.Transact(func() error {
		require.NoError(t, m.SendOp([]string{"a"}, []byte("1"), meta.Request{}, echo))
		nestedCommitted, nestedErr := m.Transact(func() error {
			return m.SendOp([]string{"b"}, []byte("2"), meta.Request{}, echo)
		})
		require.NoError(t, nestedErr)
		assert.Nil(t, nestedCommitted, "nested Transact must not commit on its own")
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, committed)
	assert.Len(t, committed.Tx.Ops, 2)
}

func TestFailedEchoAbortsCommit(t *testing.T) {
	ledger := vectorclock.New()
	m := txn.New(replicaid.ID("aaa"), ledger)

	committed, err := m.Transact(func() error {
		return m.SendOp([]string{"x"}, []byte("1"), meta.Request{}, func(path []string, payload []byte, in meta.Incoming) error {
			return errors.New("boom")
		})
	})
	assert.Error(t, err)
	assert.Nil(t, committed)
	assert.Equal(t, uint32(0), ledger.Get("aaa"), "ledger must not advance on a failed echo")
}

func TestSendOpOutsideTransactionIsUsageError(t *testing.T) {
	ledger := vectorclock.New()
	m := txn.New(replicaid.ID("aaa"), ledger)

	err := m.SendOp([]string{"x"}, []byte("1"), meta.Request{}, func(path []string, payload []byte, in meta.Incoming) error {
		return nil
	})
	assert.Error(t, err)
}

func TestUsedVectorClockKeysAreIncludedOnCommit(t *testing.T) {
	ledger := vectorclock.New()
	ledger.Advance("bbb", 5)
	m := txn.New(replicaid.ID("aaa"), ledger)

	committed, err := m.Transact(func() error {
		return m.SendOp([]string{"x"}, []byte("1"), meta.Request{}, func(path []string, payload []byte, in meta.Incoming) error {
			// Reading "bbb" through the tracked clock marks it used.
			in.VectorClock.Get("bbb")
			return nil
		})
	})
	require.NoError(t, err)
	require.NotNil(t, committed)
	assert.Equal(t, uint32(5), committed.Tx.VectorClock.Get("bbb"))
}

func TestUnreadVectorClockKeysAreOmitted(t *testing.T) {
	ledger := vectorclock.New()
	ledger.Advance("bbb", 5)
	m := txn.New(replicaid.ID("aaa"), ledger)

	committed, err := m.Transact(func() error {
		return m.SendOp([]string{"x"}, []byte("1"), meta.Request{}, func(path []string, payload []byte, in meta.Incoming) error {
			return nil
		})
	})
	require.NoError(t, err)
	require.NotNil(t, committed)
	assert.Equal(t, uint32(0), committed.Tx.VectorClock.Get("bbb"))
}
