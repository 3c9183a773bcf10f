// Package retry re-executes failing operations with bounded exponential
// backoff. Retryability is decided by the failure taxonomy, so callers pass
// their errors through unchanged and the policy decides what is worth
// repeating. The backoff sleep suspends only the calling goroutine and is
// cut short by context cancellation.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/mailpilot/mailpilot-api/internal/failure"
	"github.com/mailpilot/mailpilot-api/internal/platform/logger"
)

// Policy configures retry behavior for an operation.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// ExponentialBase is the backoff multiplier between attempts.
	ExponentialBase float64

	// IsRetryable decides whether a failed attempt is worth repeating.
	// When nil, the failure taxonomy's category defaults apply.
	IsRetryable func(error) bool
}

// DefaultPolicy returns the policy used for external work payloads:
// temporary, network, system and unknown failures retry; validation,
// authentication and database failures do not.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
	}
}

// DatabasePolicy returns the stricter variant used for storage operations:
// shorter, tighter backoff, and database failures are retryable too.
func DatabasePolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		ExponentialBase: 2.0,
		IsRetryable: func(err error) bool {
			c := failure.Classify(err)
			return c != nil && (c.Retryable || c.Category == failure.CategoryDatabase)
		},
	}
}

// Delay computes the backoff before the (attempt+2)-th try:
// min(base * exponentialBase^attempt, max), jittered by ±10% so retries
// across owners do not land in lockstep.
func (p Policy) Delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	capped := math.Min(backoff, float64(p.MaxDelay))

	jitter := 0.9 + rand.Float64()*0.2
	return time.Duration(capped * jitter)
}

// retryable resolves the effective retryability predicate.
func (p Policy) retryable(err error) bool {
	if p.IsRetryable != nil {
		return p.IsRetryable(err)
	}
	return failure.IsRetryable(err)
}

// Do invokes op, retrying per the policy. On a non-retryable failure or
// exhausted attempts, the final error is surfaced in its classified form —
// never silently swallowed. The sleep between attempts respects ctx.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	log := logger.FromContext(ctx)

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		classified := failure.Classify(err)
		if !policy.retryable(err) {
			log.Debug("failure is not retryable, surfacing immediately",
				"category", classified.Category,
				"attempt", attempt+1)
			return zero, error(classified)
		}

		if attempt == attempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		log.Debug("retrying after delay",
			"category", classified.Category,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	classified := failure.Classify(lastErr)
	classified.WithDetail("attempts", attempts)
	log.Warn("retry attempts exhausted",
		"category", classified.Category,
		"attempts", attempts)
	return zero, error(classified)
}
