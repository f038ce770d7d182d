package wsnotify

import "fmt"

// EventKind tags an Event.
type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventData
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventData:
		return "data"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one lifecycle or data notification delivered to the caller.
type Event struct {
	Kind EventKind
	// Payload is set for EventData.
	Payload Payload
	// Code is the close code for EventDisconnected.
	Code int
	// Err is set for EventError.
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case EventData:
		return fmt.Sprintf("Event{kind=%s,payload=%s}", e.Kind, e.Payload)
	case EventDisconnected:
		return fmt.Sprintf("Event{kind=%s,code=%d}", e.Kind, e.Code)
	case EventError:
		return fmt.Sprintf("Event{kind=%s,err=%v}", e.Kind, e.Err)
	default:
		return fmt.Sprintf("Event{kind=%s}", e.Kind)
	}
}

// Handlers receives client events. Nil callbacks are skipped. Callbacks run on
// the client's goroutines and must not block for long; data callbacks are
// invoked in the order frames arrive.
//
// OnDisconnected is only called for connections that reached OnConnected. A
// dial or handshake failure is reported through OnError alone, followed by a
// retry when one is left. A connection lost without a close handshake reports
// an error wrapping ErrTransport through OnError, then OnDisconnected(1006).
//
// No OnData call starts once the connection it came from has been closed or
// superseded, but a call already running when Disconnect is issued may still
// finish after OnDisconnected(1000).
type Handlers struct {
	OnData         func(Payload)
	OnConnected    func()
	OnDisconnected func(code int)
	OnError        func(error)

	// onTerminal runs once the client stops for good: after Disconnect, a
	// normal closure by the server or when retries are exhausted.
	onTerminal func()
}
