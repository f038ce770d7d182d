package wsnotify

import (
	"math"
	"time"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

// BackoffPolicy computes reconnection delays as min(Base * 2^attempt, Max).
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoffPolicy waits 1s, 2s, 4s, 8s, 16s and then 30s for good.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Base: DefaultBaseDelay, Max: DefaultMaxDelay}
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.Base <= 0 {
		p.Base = DefaultBaseDelay
	}
	if p.Max <= 0 {
		p.Max = DefaultMaxDelay
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	return p
}

// Delay returns the wait before retry number attempt (zero based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 0 {
		attempt = 0
	}

	factor := math.Pow(2, float64(attempt))
	delay := float64(p.Base) * factor
	if math.IsInf(delay, 0) || delay >= float64(p.Max) {
		return p.Max
	}
	return time.Duration(delay)
}
