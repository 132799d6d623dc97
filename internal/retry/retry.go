package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 10 * time.Second
)

// Policy bounds how an external call is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// AttemptTimeout bounds each individual attempt. Zero disables it.
	AttemptTimeout time.Duration

	// Sleeper replaces the real wait between attempts (tests).
	Sleeper func(time.Duration)
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		MaxAttempts: defaultAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts
// run out. An attempt that exceeds AttemptTimeout while the parent context
// is still live is reported as an upstream timeout.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := p.runAttempt(ctx, op, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		if !failure.Retryable(err) || attempt == attempts {
			break
		}

		delay := p.backoff(attempt)
		if ra := failure.RetryAfterOf(err); ra > 0 {
			delay = p.capDelay(ra)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}

	if attempts > 1 && failure.Retryable(lastErr) {
		kind := failure.KindOf(lastErr)
		return &failure.Error{
			Kind:    kind,
			Op:      op,
			Message: fmt.Sprintf("failed after %d attempts", attempts),
			Err:     lastErr,
		}
	}
	return lastErr
}

func (p Policy) runAttempt(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attemptCtx := ctx
	if p.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
	}

	err := fn(attemptCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && attemptCtx.Err() != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		if _, ok := failure.As(err); !ok || failure.KindOf(err) != failure.KindUpstreamTimeout {
			return &failure.Error{
				Kind:    failure.KindUpstreamTimeout,
				Op:      op,
				Message: fmt.Sprintf("attempt exceeded %s", p.AttemptTimeout),
				Err:     err,
			}
		}
	}
	return err
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// backoff doubles the base delay per attempt: base, base*2, base*4, ...
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > p.maxDelay()/2 {
			delay = p.maxDelay()
			break
		}
		delay *= 2
	}
	return p.capDelay(delay)
}

func (p Policy) maxDelay() time.Duration {
	if p.MaxDelay > 0 {
		return p.MaxDelay
	}
	return defaultMaxDelay
}

func (p Policy) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if limit := p.maxDelay(); delay > limit {
		return limit
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if p.Sleeper != nil {
		p.Sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
