package workflow

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/xhad/greenlens/internal/faults"
)

// RetryPolicy is the one retry abstraction applied at every stage boundary.
// Stages don't roll their own loops; they declare a policy and hand their
// work to Do.
type RetryPolicy struct {
	MaxAttempts int
	Retryable   func(err error) bool

	MinBackoff time.Duration // default 1s
	MaxBackoff time.Duration // default 30s
	JitterFrac float64       // default 0.20
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Retryable == nil {
		p.Retryable = faults.IsTransient
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = time.Second
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = 30 * time.Second
	}
	if p.JitterFrac <= 0 {
		p.JitterFrac = 0.20
	}
	return p
}

// backoff returns the sleep before attempt n (1-based), exponential with
// jitter, capped at MaxBackoff.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.MinBackoff) * math.Pow(2, float64(attempt-1))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	jitter := 1 + p.JitterFrac*(2*rand.Float64()-1)
	return time.Duration(d * jitter)
}

// Do runs fn until it succeeds, returns a non-retryable error, or exhausts
// MaxAttempts. The attempt count is returned either way for the run's
// bookkeeping. Context cancellation stops the loop between attempts.
func (p RetryPolicy) Do(ctx context.Context, onRetry func(attempt int, err error), fn func(ctx context.Context) error) (int, error) {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, faults.ErrCancelled
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if !p.Retryable(lastErr) || attempt == p.MaxAttempts {
			return attempt, lastErr
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		select {
		case <-ctx.Done():
			return attempt, faults.ErrCancelled
		case <-time.After(p.backoff(attempt)):
		}
	}

	return p.MaxAttempts, lastErr
}
