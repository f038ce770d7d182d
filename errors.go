package wsnotify

import (
	"fmt"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

var (
	ErrConnectionClosed   = errors.New("connection has been closed")
	ErrCannotConnect      = errors.New("connection cannot be established")
	ErrRateLimit          = errors.New("rate limit exceeded")
	ErrUnauthorized       = errors.New("handshake rejected: unauthorized")
	ErrMissingAddress     = errors.New("server address is required")
	ErrMaxAttemptsReached = errors.New("max attempts reached")
	ErrDecode             = errors.New("cannot decode inbound frame")
	ErrEncode             = errors.New("cannot encode outbound message")
	ErrSendBufferFull     = errors.New("send buffer is full")
	ErrTransport          = errors.New("transport failure")
)

// pongTimeoutCloseCode is sent when the heartbeat gives up waiting for a pong.
const pongTimeoutCloseCode = 4000

// CloseError reports how a connection ended. Code follows RFC 6455 close codes,
// 1006 when the socket died without a close frame. Cause holds the read or
// write error of such a socket and is nil for close frames and local closes.
type CloseError struct {
	Code  int
	Text  string
	Cause error
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("connection closed with code %d", e.Code)
	}
	return fmt.Sprintf("connection closed with code %d: %s", e.Code, e.Text)
}

func (e *CloseError) Unwrap() error { return ErrConnectionClosed }

// CloseCode extracts the close code carried by err, defaulting to abnormal closure.
func CloseCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// transportFailure returns the transport error behind a closure, wrapped with
// ErrTransport, or nil if the connection ended through a close handshake.
func transportFailure(err error) error {
	var ce *CloseError
	if !errors.As(err, &ce) || ce.Cause == nil {
		return nil
	}
	return errors.Wrap(ErrTransport, ce.Cause.Error())
}

// ServerError is an error the server reported through an "error" envelope.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

type AddressError struct {
	Address string
	err     error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid server address %q: %s", e.Address, e.err)
}

func (e *AddressError) Unwrap() error { return e.err }
