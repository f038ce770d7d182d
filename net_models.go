package wsnotify

import (
	"context"
)

type (
	CloseChan chan struct{}

	// Connection is a single transport lifetime. It is never reopened: a reconnect
	// builds a new one through the ConnectionFactory.
	Connection interface {
		// Open dials the server. It returns once the handshake completes or fails.
		Open(ctx context.Context) error
		// Write queues m without blocking.
		Write(m Message) error
		// Recv delivers inbound frames in wire order and is closed when the connection ends.
		Recv() <-chan Message
		// Close sends a close frame with code and tears the connection down.
		Close(code int, reason string)
		// CloseErr explains why the connection ended, usually a *CloseError.
		CloseErr() error
		CloseChan() CloseChan
	}

	ConnectionFactory func(ctx context.Context) Connection
)
