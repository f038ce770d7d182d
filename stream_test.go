package wsnotify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStream_DeliversInOrder(t *testing.T) {
	s := newEventStream(context.Background(), 4)
	h := s.handlers()

	h.OnConnected()
	h.OnData(Payload(`{"id":1}`))
	h.OnError(ErrCannotConnect)
	h.OnDisconnected(1001)
	h.onTerminal()

	var got []Event
	for e := range s.ch {
		got = append(got, e)
	}

	require.Len(t, got, 4)
	assert.Equal(t, EventConnected, got[0].Kind)
	assert.Equal(t, EventData, got[1].Kind)
	assert.Equal(t, `{"id":1}`, got[1].Payload.String())
	assert.ErrorIs(t, got[2].Err, ErrCannotConnect)
	assert.Equal(t, 1001, got[3].Code)
}

func TestEventStream_CloseUnblocksEmit(t *testing.T) {
	s := newEventStream(context.Background(), 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.emit(Event{Kind: EventConnected})
	}()

	time.Sleep(10 * time.Millisecond)
	s.close()
	s.close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit still blocked after close")
	}

	_, open := <-s.ch
	assert.False(t, open)

	assert.NotPanics(t, func() { s.emit(Event{Kind: EventData}) })
}

func TestEventStream_ContextUnblocksEmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newEventStream(ctx, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.emit(Event{Kind: EventConnected})
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit still blocked after cancel")
	}
}
