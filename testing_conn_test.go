package wsnotify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Connection driven by the test.
type fakeConn struct {
	openErr error

	mu        sync.Mutex
	written   []Message
	closeErr  error
	closeOnce sync.Once
	recv      chan Message
	closeC    CloseChan
}

func newFakeConn(openErr error) *fakeConn {
	return &fakeConn{
		openErr: openErr,
		recv:    make(chan Message, 16),
		closeC:  make(CloseChan),
	}
}

func (f *fakeConn) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.openErr
}

func (f *fakeConn) Write(m Message) error {
	select {
	case <-f.closeC:
		return ErrConnectionClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, m)
	return nil
}

func (f *fakeConn) Recv() <-chan Message { return f.recv }

func (f *fakeConn) Close(code int, reason string) {
	f.end(&CloseError{Code: code, Text: reason})
}

func (f *fakeConn) CloseErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeErr
}

func (f *fakeConn) CloseChan() CloseChan { return f.closeC }

// serverClose simulates the peer going away with code.
func (f *fakeConn) serverClose(code int) {
	f.end(&CloseError{Code: code})
}

// drop simulates the socket dying without a close handshake.
func (f *fakeConn) drop(err error) {
	f.end(&CloseError{Code: 1006, Text: err.Error(), Cause: err})
}

func (f *fakeConn) end(err error) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closeErr = err
		f.mu.Unlock()
		close(f.closeC)
		close(f.recv)
	})
}

func (f *fakeConn) push(frame string) {
	f.recv <- NewTextMessage([]byte(frame))
}

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.written))
	for _, m := range f.written {
		out = append(out, string(m.Data()))
	}
	return out
}

func (f *fakeConn) closeCode() int {
	return CloseCode(f.CloseErr())
}

// fakeDialer hands out fakeConns and records every dial.
type fakeDialer struct {
	mu     sync.Mutex
	fail   func(n int) error
	conns  []*fakeConn
	dialed chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 64)}
}

func (d *fakeDialer) factory(context.Context) Connection {
	d.mu.Lock()
	n := len(d.conns)
	var err error
	if d.fail != nil {
		err = d.fail(n)
	}
	conn := newFakeConn(err)
	d.conns = append(d.conns, conn)
	d.mu.Unlock()

	d.dialed <- conn
	return conn
}

// lingeringConn blocks Open until release is closed. Like a read loop with
// frames still in flight, its Recv only closes after every pending frame has
// been consumed.
type lingeringConn struct {
	*fakeConn
	pending   int
	release   chan struct{}
	flushed   chan struct{}
	closeOnce sync.Once
}

func newLingeringConn(pending int) *lingeringConn {
	return &lingeringConn{
		fakeConn: newFakeConn(nil),
		pending:  pending,
		release:  make(chan struct{}),
		flushed:  make(chan struct{}),
	}
}

// Open ignores ctx, so it can succeed after the client moved on.
func (l *lingeringConn) Open(context.Context) error {
	<-l.release
	return nil
}

func (l *lingeringConn) Close(code int, reason string) {
	l.closeOnce.Do(func() {
		go func() {
			defer close(l.flushed)
			for i := 0; i < l.pending; i++ {
				l.push(`{"type":"notification","data":{"late":true}}`)
			}
			l.end(&CloseError{Code: code, Text: reason})
		}()
	})
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case conn := <-d.dialed:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dial")
		return nil
	}
}

func (d *fakeDialer) requireNoDial(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-d.dialed:
		t.Fatal("unexpected dial")
	case <-time.After(within):
	}
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) StateChanged(state ConnectionState) {
	m.Called(state)
}

func (m *mockMetrics) ReconnectScheduled(attempt int, delay time.Duration) {
	m.Called(attempt, delay)
}

func (m *mockMetrics) EnvelopeReceived(kind EnvelopeKind) {
	m.Called(kind)
}

func (m *mockMetrics) SendDropped(reason string) {
	m.Called(reason)
}

func (m *mockMetrics) DecodeFailed() {
	m.Called()
}

// recorder collects handler invocations.
type recorder struct {
	mu           sync.Mutex
	data         []Payload
	connected    int
	disconnected []int
	errs         []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnData: func(p Payload) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.data = append(r.data, p)
		},
		OnConnected: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connected++
		},
		OnDisconnected: func(code int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnected = append(r.disconnected, code)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) snapshot() (data []Payload, connected int, disconnected []int, errs []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payload(nil), r.data...), r.connected, append([]int(nil), r.disconnected...), append([]error(nil), r.errs...)
}

func (r *recorder) errors() []error {
	_, _, _, errs := r.snapshot()
	return errs
}

func (r *recorder) connects() int {
	_, n, _, _ := r.snapshot()
	return n
}

func requireState(t *testing.T, c *Client, want ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, time.Millisecond,
		"client never reached %s", want)
}

func requireRetryPending(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.retry.pending()
	}, 2*time.Second, time.Millisecond, "no retry scheduled")
}

func heartbeatActive(c *Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat != nil
}

func awaitingPong(c *Client) bool {
	c.mu.Lock()
	hb := c.heartbeat
	c.mu.Unlock()
	if hb == nil {
		return false
	}
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return !hb.awaitingSince.IsZero()
}
