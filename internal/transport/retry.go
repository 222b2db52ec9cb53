package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
)

const backoffFactor = 1.5

// RetryPolicy bounds connection attempts.
type RetryPolicy struct {
	// Attempts is the total number of tries. Zero or less means one try.
	Attempts int

	// Interval is the wait after the first failure.
	Interval time.Duration

	// MaxInterval caps the growing wait. Zero means no growth.
	MaxInterval time.Duration
}

// DefaultRetryPolicy tries ten times, five seconds apart at first.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    10,
		Interval:    5 * time.Second,
		MaxInterval: time.Minute,
	}
}

// RetryPolicyFromConfig reads the transport section.
func RetryPolicyFromConfig(cfg config.TransportConfig) RetryPolicy {
	return RetryPolicy{
		Attempts:    cfg.ConnectAttempts,
		Interval:    time.Duration(cfg.RetryInterval) * time.Second,
		MaxInterval: time.Duration(cfg.MaxRetryInterval) * time.Second,
	}
}

// next returns the wait following backoff.
func (p RetryPolicy) next(backoff time.Duration) time.Duration {
	if p.MaxInterval <= 0 {
		return backoff
	}
	grown := time.Duration(float64(backoff) * backoffFactor)
	if grown > p.MaxInterval {
		grown = p.MaxInterval
	}
	return grown
}

// ConnectWithRetry calls dial until it succeeds, the attempts run out or
// ctx is cancelled. An invalid token is never retried.
//
// When every attempt fails the returned error wraps both ErrConnectFailed
// and the last dial error.
func ConnectWithRetry[C any](ctx context.Context, policy RetryPolicy, logger Logger, dial func() (C, error)) (C, error) {
	var zero C
	if logger == nil {
		logger = noopLogger{}
	}

	attempts := max(policy.Attempts, 1)
	backoff := policy.Interval

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		conn, err := dial()
		if err == nil {
			if attempt > 1 {
				logger.Info("connected", "attempt", attempt)
			}
			return conn, nil
		}
		if errors.Is(err, ErrInvalidToken) {
			return zero, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		logger.Warn("connection attempt failed",
			"attempt", attempt,
			"of", attempts,
			"retry_in", backoff.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = policy.next(backoff)
	}

	logger.Error("giving up connecting", "attempts", attempts, "error", lastErr)
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrConnectFailed, attempts, lastErr)
}
