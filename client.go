package wsnotify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// ConnectionState is the state of the client's single connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config holds the client configuration. Only URL is required.
type Config struct {
	// URL of the server, ws(s):// or an http(s):// origin that is mapped to ws(s)://.
	URL string
	// Token is appended to the URL as the TokenParam query parameter.
	Token string
	// TokenProvider, when set, is asked for a token before every dial and takes
	// precedence over Token.
	TokenProvider TokenProvider
	TokenParam    string
	Header        http.Header

	Backoff BackoffPolicy
	// MaxAttempts caps consecutive reconnection attempts. Defaults to 5.
	MaxAttempts int

	HeartbeatInterval time.Duration
	// PongTimeout, when positive, abandons a connection whose pings go
	// unanswered for that long. Zero leaves liveness to the transport.
	PongTimeout time.Duration

	Dialer *websocket.Dialer
	// DialErrorAdapter, when set, replaces the default handshake error
	// classification. It is called after every dial, including successful
	// ones with a nil error, and its result is what Open returns.
	DialErrorAdapter  ErrAdapter
	ConnectionFactory ConnectionFactory

	Logger  Logger
	Metrics Metrics
	Clock   clockwork.Clock
}

func (c Config) withDefaults() Config {
	c.Backoff = c.Backoff.withDefaults()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.TokenParam == "" {
		c.TokenParam = DefaultTokenParam
	}
	if c.Logger == nil {
		c.Logger = NewZapLogger(nil)
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Client keeps one persistent connection to the server, reconnecting with
// exponential backoff after unexpected closures.
type Client struct {
	id         string
	cfg        Config
	logger     Logger
	metrics    Metrics
	clock      clockwork.Clock
	dispatcher *dispatcher

	mu          sync.Mutex
	state       ConnectionState
	epoch       uint64
	factory     ConnectionFactory
	conn        Connection
	cancelConn  context.CancelFunc
	ctx         context.Context
	stopWatch   func() bool
	intentional bool
	heartbeat   *heartbeat
	retry       *reconnectScheduler
}

// New builds a client. Nothing is dialed until Connect.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	logger := cfg.Logger.WithField("client_id", id)

	return &Client{
		id:         id,
		cfg:        cfg,
		logger:     logger,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		dispatcher: newDispatcher(logger, cfg.Metrics),
		retry:      newReconnectScheduler(logger, cfg.Metrics, cfg.Clock, cfg.Backoff, cfg.MaxAttempts),
		ctx:        context.Background(),
	}
}

// ID identifies this client in logs.
func (c *Client) ID() string {
	return c.id
}

// Connect starts connecting and returns without waiting for the handshake;
// the outcome is reported through h. It is a no-op while connecting or open.
// Only a malformed address is reported synchronously. Cancelling ctx has the
// same effect as Disconnect.
func (c *Client) Connect(ctx context.Context, h Handlers) error {
	factory, err := c.connectionFactory()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateOpen || c.state == StateConnecting {
		c.logger.Debugf("connect ignored, client is %s", c.state)
		return nil
	}

	c.intentional = false
	c.retry.reset()
	c.dispatcher.bind(h)
	c.watchLocked(ctx)
	c.factory = factory
	c.connectLocked()

	return nil
}

// Stream connects like Connect and returns the events as a channel, closed
// once the client stops for good.
func (c *Client) Stream(ctx context.Context, buffer int) (<-chan Event, error) {
	s := newEventStream(ctx, buffer)
	if err := c.Connect(ctx, s.handlers()); err != nil {
		return nil, err
	}
	return s.ch, nil
}

// Disconnect closes the connection with a normal closure and cancels any
// pending reconnection. Calling it again is harmless.
func (c *Client) Disconnect() {
	c.mu.Lock()
	handlers := c.dispatcher.generation()

	c.intentional = true
	pending := c.retry.cancel()

	if c.state == StateDisconnected && !pending {
		c.mu.Unlock()
		c.dispatcher.terminate(handlers)
		return
	}

	wasOpen := c.state == StateOpen
	c.setStateLocked(StateClosing)
	c.stopHeartbeatLocked()
	c.epoch++

	conn := c.conn
	c.releaseConnLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.logger.Infoln("disconnecting")
	if conn != nil {
		conn.Close(websocket.CloseNormalClosure, "client disconnect")
	}
	if wasOpen {
		c.dispatcher.disconnected(websocket.CloseNormalClosure)
	}
	c.dispatcher.terminate(handlers)
}

// Send serializes v and writes it if the connection is open. Otherwise the
// message is dropped with a warning; sends are never queued.
func (c *Client) Send(v any) {
	bts, err := EncodeMessage(v)
	if err != nil {
		c.logger.Errorf("cannot encode outbound message: %s", err)
		c.metrics.SendDropped(dropReasonEncode)
		c.dispatcher.fail(err)
		return
	}
	c.write(bts)
}

// Subscribe asks the server to only deliver the given notification types.
// The server confirms with a "subscribed" envelope, which is only logged.
func (c *Client) Subscribe(types ...string) {
	bts, err := EncodeSubscribe(types)
	if err != nil {
		c.dispatcher.fail(err)
		return
	}
	c.write(bts)
}

func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Client) write(bts []byte) {
	c.mu.Lock()
	state, conn := c.state, c.conn
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		c.logger.Warnf("dropping outbound message, client is %s", state)
		c.metrics.SendDropped(dropReasonNotOpen)
		return
	}

	if err := conn.Write(NewTextMessage(bts)); err != nil {
		c.logger.Warnf("dropping outbound message: %s", err)
		c.metrics.SendDropped(dropReasonBufferFull)
	}
}

func (c *Client) connectionFactory() (ConnectionFactory, error) {
	base, err := BuildURL(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	if c.cfg.ConnectionFactory != nil {
		return c.cfg.ConnectionFactory, nil
	}

	tokens := c.cfg.TokenProvider
	if tokens == nil && c.cfg.Token != "" {
		tokens = StaticToken(c.cfg.Token)
	}

	repo := NewOpenConnectionParamsRepo(
		c.logger,
		NewTokenParamsGetter(base, c.cfg.TokenParam, c.cfg.Header, tokens),
	)
	return NewWebsocketFactory(c.logger, c.cfg.Dialer, repo, ErrorAdapters{OnDial: c.cfg.DialErrorAdapter}), nil
}

// watchLocked ties the client lifetime to ctx, replacing any previous ctx.
func (c *Client) watchLocked(ctx context.Context) {
	if c.stopWatch != nil {
		c.stopWatch()
	}
	c.ctx = ctx
	c.stopWatch = context.AfterFunc(ctx, c.Disconnect)
}

// connectLocked starts a new epoch with a fresh connection.
func (c *Client) connectLocked() {
	c.epoch++
	epoch := c.epoch

	ctx, cancel := context.WithCancel(c.ctx)
	conn := c.factory(ctx)

	c.conn = conn
	c.cancelConn = cancel
	c.setStateLocked(StateConnecting)

	c.logger.Infof("connecting (epoch %d)", epoch)

	go c.run(ctx, epoch, conn)
}

func (c *Client) run(ctx context.Context, epoch uint64, conn Connection) {
	if err := conn.Open(ctx); err != nil {
		c.handleFailure(epoch, err)
		return
	}

	if !c.handleOpen(epoch) {
		conn.Close(websocket.CloseNormalClosure, "superseded")
		for range conn.Recv() {
		}
		return
	}

	for m := range conn.Recv() {
		c.handleFrame(epoch, m)
	}

	c.handleClose(epoch, conn.CloseErr())
}

func (c *Client) handleOpen(epoch uint64) bool {
	c.mu.Lock()
	if epoch != c.epoch || c.intentional {
		c.mu.Unlock()
		return false
	}

	c.setStateLocked(StateOpen)
	c.retry.succeeded()
	c.startHeartbeatLocked(epoch)
	c.mu.Unlock()

	c.logger.Infoln("connection established")
	c.dispatcher.connected()
	return true
}

func (c *Client) handleFrame(epoch uint64, m Message) {
	if !c.isCurrent(epoch) {
		return
	}

	if m.Type().IsControl() {
		c.logger.Debugf("ignoring %s control frame", m.Type())
		return
	}
	if !m.Type().IsText() {
		c.logger.Debugf("ignoring %s frame", m.Type())
		return
	}

	env, err := DecodeEnvelope(m.Data())
	if err != nil {
		c.logger.Errorf("cannot decode frame %q: %s", m.Data(), err)
		c.metrics.DecodeFailed()
		c.dispatcher.fail(err)
		return
	}

	c.dispatcher.route(
		env,
		func() bool { return c.isCurrent(epoch) },
		func() { c.pong(epoch) },
	)
}

// handleFailure deals with a connection that never opened.
func (c *Client) handleFailure(epoch uint64, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}

	c.releaseConnLocked()
	c.setStateLocked(StateDisconnected)
	retrying, exhausted := c.scheduleRetryLocked()
	handlers := c.dispatcher.generation()
	c.mu.Unlock()

	c.logger.Errorf("connection attempt failed: %s", err)
	c.dispatcher.fail(err)
	c.afterClosure(handlers, retrying, exhausted)
}

func (c *Client) handleClose(epoch uint64, closeErr error) {
	code := CloseCode(closeErr)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}

	c.stopHeartbeatLocked()
	c.releaseConnLocked()
	c.setStateLocked(StateDisconnected)

	var retrying, exhausted bool
	if !c.intentional && code != websocket.CloseNormalClosure {
		retrying, exhausted = c.scheduleRetryLocked()
	}
	handlers := c.dispatcher.generation()
	c.mu.Unlock()

	c.logger.Infof("connection closed: %v", closeErr)
	if err := transportFailure(closeErr); err != nil {
		c.dispatcher.fail(err)
	}
	c.dispatcher.disconnected(code)
	c.afterClosure(handlers, retrying, exhausted)
}

// afterClosure reports exhaustion and, when no retry is coming, terminates the
// handler set that was bound when the closure happened.
func (c *Client) afterClosure(handlers uint64, retrying, exhausted bool) {
	if exhausted {
		c.dispatcher.fail(errors.Wrapf(ErrMaxAttemptsReached, "gave up after %d attempts", c.cfg.MaxAttempts))
	}
	if !retrying {
		c.dispatcher.terminate(handlers)
	}
}

// scheduleRetryLocked reports whether a retry is armed and whether the
// attempt ceiling stopped it.
func (c *Client) scheduleRetryLocked() (retrying, exhausted bool) {
	if c.intentional {
		return false, false
	}
	if _, ok := c.retry.schedule(c.fireRetry); !ok {
		return false, true
	}
	return true, false
}

func (c *Client) fireRetry(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.intentional || c.state != StateDisconnected || !c.retry.claim(token) {
		return
	}
	if c.ctx.Err() != nil {
		return
	}
	c.connectLocked()
}

func (c *Client) startHeartbeatLocked(epoch uint64) {
	hb := newHeartbeat(c.logger, c.clock, c.cfg.HeartbeatInterval, c.cfg.PongTimeout)
	c.heartbeat = hb

	go hb.run(
		func() bool { return c.ping(epoch) },
		func() { c.abandon(epoch) },
	)
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeat != nil {
		c.heartbeat.stop()
		c.heartbeat = nil
	}
}

// ping writes a keepalive frame if epoch is still the open connection.
func (c *Client) ping(epoch uint64) bool {
	c.mu.Lock()
	conn := c.conn
	current := epoch == c.epoch && c.state == StateOpen
	c.mu.Unlock()

	if !current || conn == nil {
		return false
	}

	bts, err := EncodePing()
	if err != nil {
		return false
	}
	if err := conn.Write(NewTextMessage(bts)); err != nil {
		c.logger.Warnf("cannot send keepalive ping: %s", err)
		return false
	}
	return true
}

func (c *Client) pong(epoch uint64) {
	c.mu.Lock()
	hb := c.heartbeat
	current := epoch == c.epoch
	c.mu.Unlock()

	if current && hb != nil {
		hb.pong()
	}
}

// abandon force-closes a connection whose pings went unanswered, which in turn
// schedules a reconnection.
func (c *Client) abandon(epoch uint64) {
	c.mu.Lock()
	conn := c.conn
	current := epoch == c.epoch && c.state == StateOpen
	c.mu.Unlock()

	if current && conn != nil {
		conn.Close(pongTimeoutCloseCode, "pong timeout")
	}
}

func (c *Client) isCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return epoch == c.epoch
}

func (c *Client) releaseConnLocked() {
	if c.cancelConn != nil {
		c.cancelConn()
		c.cancelConn = nil
	}
	c.conn = nil
}

func (c *Client) setStateLocked(s ConnectionState) {
	if c.state == s {
		return
	}
	c.logger.Debugf("state %s -> %s", c.state, s)
	c.state = s
	c.metrics.StateChanged(s)
}
