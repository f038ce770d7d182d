package wsnotify

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

const (
	sendBufferSize      = 32
	defaultWriteTimeout = time.Second
)

type (
	openConnectionParamsRepo interface {
		Get(ctx context.Context) (OpenConnectionParams, error)
	}

	ErrAdapter func(*websocket.Conn, *http.Response, error) error

	ErrorAdapters struct {
		OnDial ErrAdapter
	}

	// WsConnection is a Connection over a websocket.
	WsConnection struct {
		errAdapters              ErrorAdapters
		openConnectionParamsRepo openConnectionParamsRepo
		logger                   Logger
		dialer                   *websocket.Dialer
		writeTimeout             time.Duration

		mu     sync.Mutex
		conn   *websocket.Conn
		closed bool

		closeChan       CloseChan
		closeOnce       sync.Once
		closeReason     error
		closeReasonOnce sync.Once
		recv            chan Message // frames received over the wire
		send            chan Message // frames to be sent over the wire
	}
)

func NewWebsocketConnection(
	dialer *websocket.Dialer,
	openParamsRepo openConnectionParamsRepo,
	logger Logger,
	errorHandlers ErrorAdapters,
) *WsConnection {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WsConnection{
		errAdapters:              errorHandlers,
		dialer:                   dialer,
		openConnectionParamsRepo: openParamsRepo,
		writeTimeout:             defaultWriteTimeout,
		recv:                     make(chan Message, sendBufferSize),
		send:                     make(chan Message, sendBufferSize),
		closeChan:                make(CloseChan),
		logger:                   logger.WithField("net", "ws_connection"),
	}
}

func NewWebsocketFactory(
	logger Logger,
	dialer *websocket.Dialer,
	openConnectionParamsRepo OpenConnectionParamsRepo,
	errorHandlers ErrorAdapters,
) ConnectionFactory {
	return func(context.Context) Connection {
		return NewWebsocketConnection(
			dialer,
			openConnectionParamsRepo,
			logger,
			errorHandlers,
		)
	}
}

// Write queues m for the writer goroutine.
func (w *WsConnection) Write(m Message) error {
	select {
	case <-w.closeChan:
		return ErrConnectionClosed
	default:
	}

	select {
	case w.send <- m:
		return nil
	case <-w.closeChan:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Recv is closed once the read loop stops.
func (w *WsConnection) Recv() <-chan Message {
	return w.recv
}

// Close sends a close frame with code, if the socket is up, and releases it.
// Only the first call has an effect.
func (w *WsConnection) Close(code int, reason string) {
	w.setCloseReason(&CloseError{Code: code, Text: reason})

	w.mu.Lock()
	conn := w.conn
	w.closed = true
	w.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.writeTimeout))
	} else {
		// never opened, nobody else will close recv
		w.closeOnce.Do(func() {
			close(w.closeChan)
			close(w.recv)
		})
		return
	}

	w.safeClose()
}

// Open dials the server and starts the read and write loops.
func (w *WsConnection) Open(ctx context.Context) error {
	if w.isClosed() {
		return ErrConnectionClosed
	}

	p, err := w.openConnectionParamsRepo.Get(ctx)
	if err != nil {
		return errors.Wrap(ErrCannotConnect, err.Error())
	}

	conn, resp, err := w.dialer.DialContext(ctx, p.URL.String(), p.Header)
	if err = w.handleDialError(conn, resp, err); err != nil {
		w.logger.Errorf("connection err to %s: %s", redact(p.URL), err)
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return ErrConnectionClosed
	}
	w.conn = conn
	w.mu.Unlock()

	w.logger.Debugf("success opening connection to %s", redact(p.URL))

	conn.SetPingHandler(func(appData string) error {
		w.logger.Debugln("<= [PING]")
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(w.writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go w.read()
	go w.write()

	return nil
}

func (w *WsConnection) CloseChan() CloseChan {
	return w.closeChan
}

// CloseErr returns why the connection ended. It is only meaningful once Recv is closed.
func (w *WsConnection) CloseErr() error {
	return w.closeReason
}

func (w *WsConnection) read() {
	defer close(w.recv)
	defer w.safeClose()

	for {
		messageType, bts, err := w.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				w.logger.Debugf("<= [CLOSE] %d %s", ce.Code, ce.Text)
				reason := &CloseError{Code: ce.Code, Text: ce.Text}
				// the library reports an unexpected EOF as 1006
				if ce.Code == websocket.CloseAbnormalClosure {
					reason.Cause = err
				}
				w.setCloseReason(reason)
			} else {
				w.logger.Errorf("error occurred on websocket read: %s", err)
				w.setCloseReason(&CloseError{Code: websocket.CloseAbnormalClosure, Text: err.Error(), Cause: err})
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			w.logger.Debugln("<= [BIN]")
			w.recv <- NewBinaryMessage(bts)
		default:
			w.logger.Debugf("<= [TEXT] %s", bts)
			w.recv <- NewTextMessage(bts)
		}
	}
}

func (w *WsConnection) write() {
	defer w.safeClose()

	for {
		select {
		case <-w.closeChan:
			return
		case msg := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))

			var err error
			switch msg.Type() {
			case BinaryMessage:
				w.logger.Debugln("=> [BIN]")
				err = w.conn.WriteMessage(websocket.BinaryMessage, msg.Data())
			default:
				w.logger.Debugf("=> [TEXT] %s", msg.Data())
				err = w.conn.WriteMessage(websocket.TextMessage, msg.Data())
			}

			if err != nil {
				w.logger.Errorf("error occurred on websocket write: %s", err)
				w.setCloseReason(&CloseError{Code: websocket.CloseAbnormalClosure, Text: err.Error(), Cause: err})
				return
			}
		}
	}
}

func (w *WsConnection) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.closed
}

func (w *WsConnection) safeClose() {
	w.closeOnce.Do(w.close)
}

func (w *WsConnection) close() {
	w.mu.Lock()
	conn := w.conn
	w.closed = true
	w.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	close(w.closeChan)
}

func (w *WsConnection) setCloseReason(err error) {
	w.closeReasonOnce.Do(func() {
		w.closeReason = err
	})
}

func (w *WsConnection) handleDialError(conn *websocket.Conn, resp *http.Response, err error) error {
	if w.errAdapters.OnDial != nil {
		return w.errAdapters.OnDial(conn, resp, err)
	}

	if err == nil {
		return nil
	}

	// 1. Check HTTP errors first
	var msg string

	if resp != nil {
		if resp.Body != nil {
			bts, readErr := io.ReadAll(resp.Body)
			if readErr == nil {
				msg = string(bts)
			}
			_ = resp.Body.Close()
		}
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return errors.Wrap(ErrRateLimit, msg)
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Wrapf(ErrUnauthorized, "status %d: %s", resp.StatusCode, msg)
		}
	}

	// 2. Network errors
	return errors.Wrap(ErrCannotConnect, err.Error())
}

// redact hides query values, which may carry the bearer token.
func redact(u url.URL) string {
	if u.RawQuery == "" {
		return u.String()
	}
	q := u.Query()
	for k := range q {
		q.Set(k, "xxxxx")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
