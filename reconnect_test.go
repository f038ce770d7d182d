package wsnotify

import (
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReconnectScheduler_Schedule(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := &mockMetrics{}
	metrics.On("ReconnectScheduled", 1, time.Second).Once()
	metrics.On("ReconnectScheduled", 2, 2*time.Second).Once()

	s := newReconnectScheduler(newTestLogger(io.Discard), metrics, clock, DefaultBackoffPolicy(), 5)

	fired := make(chan uint64, 1)
	delay, ok := s.schedule(func(token uint64) { fired <- token })
	require.True(t, ok)
	assert.Equal(t, time.Second, delay)
	assert.True(t, s.pending())

	clock.Advance(time.Second)
	token := <-fired
	require.True(t, s.claim(token))
	assert.False(t, s.pending())
	assert.False(t, s.claim(token), "a token is only claimed once")

	delay, ok = s.schedule(func(token uint64) { fired <- token })
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)

	metrics.AssertExpectations(t)
}

func TestReconnectScheduler_CancelInvalidatesToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := &mockMetrics{}
	metrics.On("ReconnectScheduled", mock.Anything, mock.Anything)

	s := newReconnectScheduler(newTestLogger(io.Discard), metrics, clock, DefaultBackoffPolicy(), 5)

	var stale uint64
	_, ok := s.schedule(func(token uint64) {})
	require.True(t, ok)
	stale = s.token

	assert.True(t, s.cancel())
	assert.False(t, s.cancel())
	assert.False(t, s.claim(stale))

	// rescheduling supersedes the previous timer
	_, _ = s.schedule(func(uint64) {})
	first := s.token
	_, _ = s.schedule(func(uint64) {})
	assert.False(t, s.claim(first))
	assert.True(t, s.claim(s.token))
}

func TestReconnectScheduler_Ceiling(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := &mockMetrics{}
	metrics.On("ReconnectScheduled", mock.Anything, mock.Anything)

	s := newReconnectScheduler(newTestLogger(io.Discard), metrics, clock, DefaultBackoffPolicy(), 3)

	for i := 0; i < 3; i++ {
		_, ok := s.schedule(func(uint64) {})
		require.True(t, ok)
		require.True(t, s.claim(s.token))
	}

	_, ok := s.schedule(func(uint64) {})
	assert.False(t, ok)
	assert.False(t, s.pending())
	metrics.AssertNumberOfCalls(t, "ReconnectScheduled", 3)

	s.succeeded()
	_, ok = s.schedule(func(uint64) {})
	assert.True(t, ok)

	s.reset()
	assert.False(t, s.pending())
	assert.Zero(t, s.attempt)
}
