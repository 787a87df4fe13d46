package causal_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabtext/collabrt/causal"
	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"
	"github.com/collabtext/collabrt/wire"
)

func replicaIDOf(s string) replicaid.ID {
	return replicaid.ID(s)
}

func txWithID(sender string, counter uint32) *wire.Transaction {
	return &wire.Transaction{
		SenderID:      replicaIDOf(sender),
		SenderCounter: counter,
		VectorClock:   vectorclock.New(),
		Ops:           []wire.Op{{Path: []string{"x"}, Payload: []byte("p")}},
	}
}

func TestCausalHoldThenRelease(t *testing.T) {
	clock := vectorclock.New()
	buf := causal.New(clock)

	var applied []string
	apply := func(e causal.Entry) error {
		applied = append(applied, e.Tx.SenderID.String()+"#"+itoa(e.Tx.SenderCounter))
		return nil
	}

	// A's op #2 arrives before #1: held.
	second := txWithID("aaa", 2)
	got, err := buf.Deliver(second, nil, apply)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, buf.Len())

	// A's op #1 arrives: both apply, in order.
	first := txWithID("aaa", 1)
	got, err = buf.Deliver(first, nil, apply)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa#1", "aaa#2"}, applied)
	assert.Equal(t, uint32(2), clock.Get("aaa"))
	assert.Equal(t, 0, buf.Len())
	_ = got
}

func TestDuplicateDeliveryDropped(t *testing.T) {
	clock := vectorclock.New()
	buf := causal.New(clock)
	count := 0
	apply := func(e causal.Entry) error { count++; return nil }

	first := txWithID("aaa", 1)
	_, err := buf.Deliver(first, nil, apply)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = buf.Deliver(txWithID("aaa", 1), nil, apply)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "duplicate must not re-apply")
}

func TestQuarantineOnApplyFailureLeavesLedgerUnchanged(t *testing.T) {
	clock := vectorclock.New()
	buf := causal.New(clock)

	apply := func(e causal.Entry) error { return errors.New("schema mismatch") }

	_, err := buf.Deliver(txWithID("aaa", 1), nil, apply)
	assert.Error(t, err)
	assert.Equal(t, uint32(0), clock.Get("aaa"))
	assert.Equal(t, 1, buf.Len())
	assert.Equal(t, 1, buf.QuarantineLen())
}

func TestRetryAppliesQuarantinedTransactions(t *testing.T) {
	clock := vectorclock.New()
	buf := causal.New(clock)

	fail := true
	apply := func(e causal.Entry) error {
		if fail {
			return errors.New("not yet")
		}
		return nil
	}

	_, err := buf.Deliver(txWithID("aaa", 1), nil, apply)
	assert.Error(t, err)

	fail = false
	applied, err := buf.Retry(apply)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
	assert.Equal(t, uint32(1), clock.Get("aaa"))
}

func TestTieBreakAscendingSenderThenCounter(t *testing.T) {
	clock := vectorclock.New()
	buf := causal.New(clock)

	var order []string
	apply := func(e causal.Entry) error {
		order = append(order, e.Tx.SenderID.String())
		return nil
	}

	// aaa#1 and bbb#1 both depend on ccc#1, so neither is ready until ccc#1
	// arrives; once it does, both become ready in the same scan and must
	// release in ascending senderID order regardless of arrival order.
	withDep := func(sender string) *wire.Transaction {
		t := txWithID(sender, 1)
		t.VectorClock.Advance("ccc", 1)
		return t
	}

	_, err := buf.Deliver(withDep("bbb"), nil, apply)
	require.NoError(t, err)
	_, err = buf.Deliver(withDep("aaa"), nil, apply)
	require.NoError(t, err)
	assert.Empty(t, order)

	_, err = buf.Deliver(txWithID("ccc", 1), nil, apply)
	require.NoError(t, err)

	assert.Equal(t, []string{"ccc", "aaa", "bbb"}, order)
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
