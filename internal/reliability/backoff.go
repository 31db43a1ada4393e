package reliability

import (
	"math"
	"math/rand"
	"time"
)

// ReconnectPolicy computes retry delays and the give-up condition for the
// connection state machine. Attempts are numbered from 1; the counter is
// owned by the caller and reset on every successful connection and on
// explicit disconnect.
type ReconnectPolicy interface {
	// NextDelay returns the delay to wait before the given attempt.
	NextDelay(attempt int) time.Duration
	// ShouldGiveUp reports whether the given attempt should not be made.
	ShouldGiveUp(attempt int) bool
}

// ExponentialBackoff implements an exponential reconnection policy.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxAttempts caps the number of reconnection attempts. A negative
	// value retries indefinitely.
	MaxAttempts int
	// Jitter spreads delays by ±15%. Off by default so the delay sequence
	// stays exact.
	Jitter bool
}

// NewExponentialBackoff creates an exponential backoff policy.
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
	}
}

// DefaultReconnectPolicy returns the reference policy: 1s base doubling to a
// 30s ceiling, retrying indefinitely. The delay sequence for consecutive
// failures is exactly 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
func DefaultReconnectPolicy() *ExponentialBackoff {
	return NewExponentialBackoff(1*time.Second, 30*time.Second, 2.0, -1)
}

// NextDelay implements ReconnectPolicy.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt-1))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}

	if e.Jitter {
		jitter := rand.Float64() * 0.3 * delay
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}

// ShouldGiveUp implements ReconnectPolicy.
func (e *ExponentialBackoff) ShouldGiveUp(attempt int) bool {
	if e.MaxAttempts < 0 {
		return false
	}
	return attempt > e.MaxAttempts
}

// FixedDelay implements a constant-delay reconnection policy. Used in tests
// and deployments where backoff growth is undesirable.
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a fixed delay policy.
func NewFixedDelay(delay time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{Delay: delay, MaxAttempts: maxAttempts}
}

// NextDelay implements ReconnectPolicy.
func (f *FixedDelay) NextDelay(attempt int) time.Duration { return f.Delay }

// ShouldGiveUp implements ReconnectPolicy.
func (f *FixedDelay) ShouldGiveUp(attempt int) bool {
	if f.MaxAttempts < 0 {
		return false
	}
	return attempt > f.MaxAttempts
}
