// Package retry decides whether a failed provider attempt is worth
// re-dispatching and how long to back off first.
package retry

import (
	"time"

	"github.com/hadiwinata/mediaforge/internal/provider"
)

const (
	defaultBaseDelay = 2 * time.Second
	defaultMaxDelay  = 2 * time.Minute
)

// Policy holds the backoff parameters. The zero value uses the defaults.
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// ShouldRetry reports whether the attempt that failed with err deserves
// another try. Only transient provider kinds are retryable, and never past
// the per-job budget.
func (p Policy) ShouldRetry(err error, retryCount, maxRetries int) bool {
	if retryCount >= maxRetries {
		return false
	}
	switch provider.KindOf(err) {
	case provider.KindRateLimited, provider.KindUpstreamTimeout, provider.KindUpstreamInternal:
		return true
	}
	return false
}

// NextDelay grows exponentially with the retry count, capped at MaxDelay, so
// a degraded upstream is never hammered.
func (p Policy) NextDelay(retryCount int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = defaultMaxDelay
	}
	if retryCount < 0 {
		retryCount = 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
