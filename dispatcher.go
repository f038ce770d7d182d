package wsnotify

import (
	"sync"
)

// dispatcher routes decoded envelopes and lifecycle changes to the bound Handlers.
type dispatcher struct {
	logger  Logger
	metrics Metrics
	emitter *EventEmitterCallback[EventKind, Event]

	mu       sync.Mutex
	gen      uint64
	terminal func()
}

func newDispatcher(logger Logger, metrics Metrics) *dispatcher {
	return &dispatcher{
		logger:  logger.WithField("component", "dispatcher"),
		metrics: metrics,
		emitter: NewEventEmitter[EventKind, Event](),
	}
}

// bind replaces the current handler set, terminating the previous one.
func (d *dispatcher) bind(h Handlers) {
	d.emitter.Reset()

	if h.OnData != nil {
		d.emitter.On(EventData, func(e Event) { h.OnData(e.Payload) })
	}
	if h.OnConnected != nil {
		d.emitter.On(EventConnected, func(Event) { h.OnConnected() })
	}
	if h.OnDisconnected != nil {
		d.emitter.On(EventDisconnected, func(e Event) { h.OnDisconnected(e.Code) })
	}
	if h.OnError != nil {
		d.emitter.On(EventError, func(e Event) { h.OnError(e.Err) })
	}

	d.mu.Lock()
	previous := d.terminal
	d.gen++
	d.terminal = h.onTerminal
	d.mu.Unlock()

	if previous != nil {
		previous()
	}
}

// route delivers env. Data and server errors are only emitted while live
// reports true; a nil live is always live. onPong is called for keepalive acks.
func (d *dispatcher) route(env Envelope, live func() bool, onPong func()) {
	d.metrics.EnvelopeReceived(env.Kind())

	switch e := env.(type) {
	case ConnectedEnvelope:
		d.logger.Infof("session established: %s (user_id=%s)", e.Message, e.UserID)
	case PongEnvelope:
		d.logger.Debugln("<= [PONG]")
		if onPong != nil {
			onPong()
		}
	case SubscribedEnvelope:
		d.logger.Infof("subscription confirmed for %v", e.Types)
	case ErrorEnvelope:
		if !isLive(live) {
			return
		}
		d.fail(&ServerError{Message: e.Message})
	case DataEnvelope:
		if !isLive(live) {
			d.logger.Debugln("dropping notification from a closed connection")
			return
		}
		d.emitter.Emit(EventData, Event{Kind: EventData, Payload: e.Payload})
	default:
		d.logger.Warnf("dropping envelope of unknown kind %q", env.Kind())
	}
}

func (d *dispatcher) connected() {
	d.emitter.Emit(EventConnected, Event{Kind: EventConnected})
}

func (d *dispatcher) disconnected(code int) {
	d.emitter.Emit(EventDisconnected, Event{Kind: EventDisconnected, Code: code})
}

func (d *dispatcher) fail(err error) {
	if !d.emitter.Has(EventError) {
		d.logger.Warnf("unhandled client error: %s", err)
		return
	}
	d.emitter.Emit(EventError, Event{Kind: EventError, Err: err})
}

func isLive(live func() bool) bool {
	return live == nil || live()
}

// generation identifies the currently bound handler set.
func (d *dispatcher) generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.gen
}

// terminate runs the terminal hook of handler set gen at most once. It is a
// no-op if another set has been bound since.
func (d *dispatcher) terminate(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	fn := d.terminal
	d.terminal = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}
