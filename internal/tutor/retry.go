package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/tutorbot/internal/llm"
)

// permanent marks an error that retrying cannot fix. Provider
// rejections (bad key, unknown model) are treated the same way.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// retry runs fn up to 1+ServiceRetries times with jittered exponential
// backoff. Exhaustion is reported as ErrServiceUnavailable wrapping the
// last error. Context errors are returned as is.
func (o *Orchestrator) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := o.retries + 1
	var lastErr error
	for attempt := range attempts {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		var (
			p        permanent
			rejected *llm.ErrRequestRejected
		)
		if errors.As(err, &p) || errors.As(err, &rejected) {
			break
		}
		if attempt == attempts-1 {
			break
		}

		wait := o.backoff.Backoff(attempt, err)
		o.log.Warn("service call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, op, lastErr)
}
