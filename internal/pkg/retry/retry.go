// Package retry provides generic exponential-backoff retry for operations
// that are not themselves flood-wait aware (file I/O, single-message
// downloads). Server-issued rate limits are handled separately by
// internal/pkg/floodwait, which knows the exact wait duration instead of
// guessing with backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Operation represents a function that can be retried.
type Operation func() error

// WithRetry executes op with exponential backoff, logging each attempt.
func WithRetry(ctx context.Context, log zerolog.Logger, name string, op Operation, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			delay := time.Duration(math.Pow(2, float64(attempt-2))) * baseDelay
			log.Warn().Str("op", name).Int("attempt", attempt).Int("max_retries", maxRetries).
				Dur("delay", delay).Msg("retrying after error")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Error().Err(err).Str("op", name).Int("attempt", attempt).Int("max_retries", maxRetries).
			Msg("attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, lastErr)
}
