package activator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// RetryPolicy is the single retry/backoff configuration shared by every
// activation call. Backoff doubles per attempt up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  2 * time.Minute,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do runs fn under the policy. Exhaustion surfaces a TaskExecutionError so
// the workflow can record the failed task by name.
func (p RetryPolicy) Do(ctx context.Context, task string, logger *zap.Logger, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		logger.Warn("Task attempt failed",
			zap.String("task", task),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr),
		)

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}

	return &core.TaskExecutionError{Task: task, Attempts: attempts, Err: lastErr}
}
