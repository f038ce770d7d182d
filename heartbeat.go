package wsnotify

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultHeartbeatInterval = 30 * time.Second

// heartbeat periodically asks the owner to send a keepalive ping while a
// connection is open. One heartbeat belongs to exactly one connection epoch.
type heartbeat struct {
	clock       clockwork.Clock
	interval    time.Duration
	pongTimeout time.Duration
	logger      Logger

	ticker    clockwork.Ticker
	closeOnce sync.Once
	closeC    chan struct{}

	mu            sync.Mutex
	awaitingSince time.Time
}

func newHeartbeat(
	logger Logger,
	clock clockwork.Clock,
	interval time.Duration,
	pongTimeout time.Duration,
) *heartbeat {
	return &heartbeat{
		logger:      logger.WithField("component", "heartbeat"),
		clock:       clock,
		interval:    interval,
		pongTimeout: pongTimeout,
		ticker:      clock.NewTicker(interval),
		closeC:      make(chan struct{}),
	}
}

// run sends a ping on every tick through ping, which reports whether the ping
// went out. onTimeout is called, and the heartbeat stops, when a ping stays
// unanswered for longer than pongTimeout.
func (h *heartbeat) run(ping func() bool, onTimeout func()) {
	defer h.ticker.Stop()

	for {
		select {
		case <-h.closeC:
			return
		case now := <-h.ticker.Chan():
			if h.expired(now) {
				h.logger.Warnf("no pong received within %s, giving up on connection", h.pongTimeout)
				onTimeout()
				return
			}
			if !ping() {
				continue
			}
			h.logger.Debugln("=> [PING]")
			h.mu.Lock()
			if h.awaitingSince.IsZero() {
				h.awaitingSince = now
			}
			h.mu.Unlock()
		}
	}
}

func (h *heartbeat) expired(now time.Time) bool {
	if h.pongTimeout <= 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	return !h.awaitingSince.IsZero() && now.Sub(h.awaitingSince) >= h.pongTimeout
}

// pong acknowledges every outstanding ping.
func (h *heartbeat) pong() {
	h.mu.Lock()
	h.awaitingSince = time.Time{}
	h.mu.Unlock()
}

func (h *heartbeat) stop() {
	h.closeOnce.Do(func() {
		close(h.closeC)
	})
}
