package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loykin/docmigrate/internal/common"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Config holds configuration for retrying bookkeeping operations against the
// tracking store. Changeset bodies are never retried.
type Config struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialDelay    time.Duration // Initial delay before first retry
	MaxDelay        time.Duration // Maximum delay between retries
	BackoffFactor   float64       // Multiplier for exponential backoff
	RetryableErrors []string      // Error substrings that trigger retries
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"temporary failure",
			"database is locked",
			"server selection error",
			"broken pipe",
		},
	}
}

// IsRetryable reports whether err looks transient.
func (rc *Config) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range rc.RetryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}
	return false
}

// Delay returns the backoff before retry number attempt (1-based).
func (rc *Config) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return rc.InitialDelay
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt-1)))
	if delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

// Operation is a unit of work that can be retried.
type Operation func(ctx context.Context) error

// WithRetry executes op, retrying transient failures with exponential backoff.
// Context cancellation stops the loop immediately.
func WithRetry(ctx context.Context, config *Config, logger *common.Logger, op Operation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	logger = common.OrDefault(logger).WithComponent("retry")

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err
		if attempt == config.MaxRetries {
			break
		}
		if !config.IsRetryable(err) {
			return err
		}
		delay := config.Delay(attempt + 1)
		logger.Warn("operation failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", config.MaxRetries+1,
			"retry_delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
	}
	logger.Error("operation failed after all retry attempts", "error", lastErr, "attempts", config.MaxRetries+1)
	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

// Value is WithRetry for operations that produce a result.
func Value[T any](ctx context.Context, config *Config, logger *common.Logger, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := WithRetry(ctx, config, logger, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
