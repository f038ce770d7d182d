package wsnotify

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// reconnectScheduler owns the attempt counter and the single pending retry
// timer. It is not safe for concurrent use: the Client calls it with its
// mutex held.
type reconnectScheduler struct {
	clock       clockwork.Clock
	policy      BackoffPolicy
	maxAttempts int
	logger      Logger
	metrics     Metrics

	attempt int
	timer   clockwork.Timer
	token   uint64
}

func newReconnectScheduler(
	logger Logger,
	metrics Metrics,
	clock clockwork.Clock,
	policy BackoffPolicy,
	maxAttempts int,
) *reconnectScheduler {
	return &reconnectScheduler{
		logger:      logger.WithField("component", "reconnect"),
		metrics:     metrics,
		clock:       clock,
		policy:      policy.withDefaults(),
		maxAttempts: maxAttempts,
	}
}

// schedule arms a one-shot timer that calls fire with the token of this
// schedule. Any pending timer is canceled first. It returns false, without
// arming anything, once maxAttempts retries have been made.
func (s *reconnectScheduler) schedule(fire func(token uint64)) (time.Duration, bool) {
	s.cancel()

	if s.attempt >= s.maxAttempts {
		s.logger.Errorf("giving up after %d reconnection attempts", s.attempt)
		return 0, false
	}

	delay := s.policy.Delay(s.attempt)
	token := s.token
	s.timer = s.clock.AfterFunc(delay, func() {
		fire(token)
	})

	s.logger.Infof("reconnecting in %s (attempt %d/%d)", delay, s.attempt+1, s.maxAttempts)
	s.metrics.ReconnectScheduled(s.attempt+1, delay)

	return delay, true
}

// claim validates a timer fire and counts it as an attempt. Stale fires, from
// timers canceled or superseded after they were armed, are refused.
func (s *reconnectScheduler) claim(token uint64) bool {
	if s.timer == nil || token != s.token {
		return false
	}
	s.timer = nil
	s.token++
	s.attempt++
	return true
}

// cancel disarms the pending timer, reporting whether there was one.
func (s *reconnectScheduler) cancel() bool {
	s.token++
	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	return true
}

func (s *reconnectScheduler) pending() bool {
	return s.timer != nil
}

// succeeded resets the attempt counter after a successful open.
func (s *reconnectScheduler) succeeded() {
	s.attempt = 0
}

func (s *reconnectScheduler) reset() {
	s.cancel()
	s.attempt = 0
}
