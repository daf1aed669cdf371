package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-eu/orchestrator-core/domain"
)

func TestPublish_SequenceIsMonotonicAndGapFree(t *testing.T) {
	s := New(100, nil)
	var sequences []int64
	for i := 0; i < 5; i++ {
		e := s.Publish("session-1", domain.EventStepProgress, "step1", nil)
		sequences = append(sequences, e.Sequence)
	}
	for i, seq := range sequences {
		assert.Equal(t, int64(i), seq)
	}
}

func TestSubscribe_SinceZeroReplaysFullHistory(t *testing.T) {
	s := New(100, nil)
	for i := 0; i < 3; i++ {
		s.Publish("session-1", domain.EventStepProgress, "step1", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsubscribe, err := s.Subscribe(ctx, "session-1", 0)
	require.NoError(t, err)
	defer unsubscribe()

	var received []domain.ProgressEvent
	for i := 0; i < 3; i++ {
		select {
		case e := <-ch:
			received = append(received, e)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for replayed event")
		}
	}
	require.Len(t, received, 3)
	assert.Equal(t, int64(0), received[0].Sequence)
	assert.Equal(t, int64(2), received[2].Sequence)
}

func TestSubscribe_LiveEventsDeliveredAfterReplay(t *testing.T) {
	s := New(100, nil)
	s.Publish("session-1", domain.EventPlanStarted, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsubscribe, err := s.Subscribe(ctx, "session-1", 0)
	require.NoError(t, err)
	defer unsubscribe()

	<-ch // consume the replayed plan_started

	go s.Publish("session-1", domain.EventStepStarted, "step1", nil)

	select {
	case e := <-ch:
		assert.Equal(t, domain.EventStepStarted, e.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestPublish_EvictionBeyondCapacityFlagsLaggingSubscriber(t *testing.T) {
	s := New(2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, unsubscribe, err := s.Subscribe(ctx, "session-1", 0)
	require.NoError(t, err)
	defer unsubscribe()

	// Fill the channel buffer (capacity 2) so the subscriber stalls, then
	// push past it: the 3rd publish must evict the oldest retained event,
	// which the stalled subscriber never consumed.
	s.Publish("session-1", domain.EventStepProgress, "a", nil)
	s.Publish("session-1", domain.EventStepProgress, "b", nil)
	s.Publish("session-1", domain.EventStepProgress, "c", nil)

	assert.True(t, s.IsLagging("session-1"))
}

func TestHistory_ReturnsRetainedRangeInclusive(t *testing.T) {
	s := New(100, nil)
	for i := 0; i < 5; i++ {
		s.Publish("session-1", domain.EventStepProgress, "step1", nil)
	}

	h := s.History("session-1", 1, 3)

	require.Len(t, h, 3)
	assert.Equal(t, int64(1), h[0].Sequence)
	assert.Equal(t, int64(3), h[2].Sequence)
}
