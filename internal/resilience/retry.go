package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig controls [Retry].
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 2 (one retry).
	Attempts int

	// Backoff is the delay before the first retry; it doubles on each
	// further retry. Default: 500ms.
	Backoff time.Duration

	// MaxBackoff caps the delay between retries. Default: 10s.
	MaxBackoff time.Duration
}

func (cfg *RetryConfig) applyDefaults() {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
}

// Retry runs fn up to cfg.Attempts times with exponential backoff between
// tries. It stops early when ctx is cancelled and returns the context error
// in that case, otherwise the last error from fn.
func Retry[R any](ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) (R, error)) (R, error) {
	cfg.applyDefaults()

	var (
		zero    R
		lastErr error
	)
	delay := cfg.Backoff
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == cfg.Attempts {
			break
		}

		slog.Warn("operation failed, retrying",
			"op", op, "attempt", attempt, "backoff", delay, "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, cfg.MaxBackoff)
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, cfg.Attempts, lastErr)
}
