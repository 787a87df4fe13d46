package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabtext/collabrt/events"
)

func TestRequestChangeOutsideBatchFiresImmediately(t *testing.T) {
	p := events.New()
	count := 0
	p.OnChange(func() { count++ })

	p.RequestChange()
	assert.Equal(t, 1, count)
}

func TestBatchCoalescesManyChangesIntoOne(t *testing.T) {
	p := events.New()
	count := 0
	p.OnChange(func() { count++ })

	err := p.BatchRemoteUpdates(func() error {
		for i := 0; i < 5; i++ {
			p.RequestChange()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBatchWithZeroDeliveriesEmitsOneChange(t *testing.T) {
	p := events.New()
	count := 0
	p.OnChange(func() { count++ })

	err := p.BatchRemoteUpdates(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdatesFireOncePerDeliveryEvenInsideBatch(t *testing.T) {
	p := events.New()
	updates := 0
	p.OnUpdate(func(u events.Update) { updates++ })

	_ = p.BatchRemoteUpdates(func() error {
		p.EmitUpdate(events.Update{Kind: events.KindMessage})
		p.EmitUpdate(events.Update{Kind: events.KindMessage})
		return nil
	})
	assert.Equal(t, 2, updates)
}

func TestSendEmitsBytes(t *testing.T) {
	p := events.New()
	var got []byte
	p.OnSend(func(s events.Send) { got = s.Bytes })

	p.EmitSend(events.Send{Bytes: []byte("hello")})
	assert.Equal(t, []byte("hello"), got)
}
