package task

import (
	"time"

	"github.com/phrazzld/postpilot/internal/domain"
)

// RetryDecision is the policy's verdict after a capability failure.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// RetryPolicy decides whether a failed step is retried and after how long.
// The delay is min(Base * 2^attempt, Cap) where attempt is the task's retry
// count before the failure is recorded.
type RetryPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultRetryPolicy returns a RetryPolicy with reasonable defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base: 2 * time.Second,
		Cap:  5 * time.Minute,
	}
}

// Decide returns whether to retry a task that failed at the given attempt.
func (p RetryPolicy) Decide(cfg domain.PublishConfig, attempt int) RetryDecision {
	if !cfg.AutoRetry || attempt >= cfg.MaxRetries {
		return RetryDecision{Retry: false}
	}
	return RetryDecision{Retry: true, Delay: p.Backoff(attempt)}
}

// Backoff returns the capped exponential delay for attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.Base <= 0 {
		return 0
	}
	delay := p.Base
	for i := 0; i < attempt; i++ {
		if p.Cap > 0 && delay >= p.Cap {
			return p.Cap
		}
		// stop doubling before overflowing
		if delay >= time.Duration(1<<62) {
			break
		}
		delay *= 2
	}
	if p.Cap > 0 && delay > p.Cap {
		return p.Cap
	}
	return delay
}
