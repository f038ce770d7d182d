package wsnotify

import (
	"context"
	"sync"
)

// eventStream adapts Handlers to a channel of Events.
type eventStream struct {
	ctx  context.Context
	ch   chan Event
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newEventStream(ctx context.Context, buffer int) *eventStream {
	if buffer < 0 {
		buffer = 0
	}
	return &eventStream{
		ctx:  ctx,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// emit blocks until the event is consumed, the stream is closed or ctx is done.
func (s *eventStream) emit(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- e:
	case <-s.done:
	case <-s.ctx.Done():
	}
}

func (s *eventStream) close() {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *eventStream) handlers() Handlers {
	return Handlers{
		OnData: func(p Payload) {
			s.emit(Event{Kind: EventData, Payload: p})
		},
		OnConnected: func() {
			s.emit(Event{Kind: EventConnected})
		},
		OnDisconnected: func(code int) {
			s.emit(Event{Kind: EventDisconnected, Code: code})
		},
		OnError: func(err error) {
			s.emit(Event{Kind: EventError, Err: err})
		},
		onTerminal: s.close,
	}
}
