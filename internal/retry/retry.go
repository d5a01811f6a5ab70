package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/mnadigest/internal/clock"
)

var ErrExhausted = errors.New("retry attempts exhausted")

// Action tells WithRetry what to do after a failed attempt.
type Action int

const (
	// Retry tries again right away.
	Retry Action = iota
	// Backoff sleeps Delay*2^attempt before trying again.
	Backoff
	// Stop gives up and returns the error as is.
	Stop
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	// Classify maps an attempt's error to an Action. Nil retries every error.
	Classify func(error) Action
	Clock    clock.Clock
}

// WithRetry calls fn with a zero-based attempt number until it succeeds, an
// error is classified Stop, or MaxAttempts is reached. No delay follows the last attempt.
func WithRetry(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	c := config.Clock
	if c == nil {
		c = clock.Real{}
	}
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		action := Retry
		if config.Classify != nil {
			action = config.Classify(err)
		}
		if action == Stop {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		if action == Backoff {
			if err := c.Sleep(ctx, config.Delay<<attempt); err != nil {
				return err
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
