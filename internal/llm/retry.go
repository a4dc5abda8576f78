package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryProvider re-sends requests that failed for transient reasons,
// waiting RetryConfig.Backoff between tries.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps p. MaxAttempts below one counts as one.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	return &RetryProvider{inner: p, config: cfg}
}

type verdict int

const (
	giveUp verdict = iota
	again
	resample // retry an invalid response, once per call
)

func classify(err error) verdict {
	var (
		maxTok   *ErrMaxTokensExceeded
		rejected *ErrRequestRejected
		invalid  *ErrInvalidResponse
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return giveUp
	case errors.As(err, &maxTok), errors.As(err, &rejected):
		return giveUp
	case errors.As(err, &invalid):
		return resample
	default:
		return again
	}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	resampled := false
	for attempt := 0; ; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		switch classify(err) {
		case giveUp:
			return nil, err
		case resample:
			if resampled {
				return nil, err
			}
			resampled = true
		}
		if attempt+1 >= r.config.MaxAttempts {
			return nil, err
		}

		t := time.NewTimer(r.config.Backoff(attempt, err))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// Backoff is the wait before retry attempt+1: InitialWait growing by
// Multiplier per attempt, capped at MaxWait, with ±20% jitter. A rate
// limit's RetryAfter overrides the curve.
func (c RetryConfig) Backoff(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	d := float64(c.InitialWait) * math.Pow(max(c.Multiplier, 1), float64(attempt))
	if c.MaxWait > 0 {
		d = math.Min(d, float64(c.MaxWait))
	}
	d *= 0.8 + 0.4*rand.Float64()
	return time.Duration(max(d, 0))
}
