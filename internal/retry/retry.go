package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffFactor     float64
	Jitter            bool
	RetriableStatuses []int
}

// DefaultConfig returns the retry settings used for upstream calendar fetches.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		RetriableStatuses: []int{
			http.StatusRequestTimeout,      // 408
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
	}
}

// Operation represents a retriable operation.
type Operation func() error

// Retryer handles retry logic with exponential backoff.
type Retryer struct {
	config *Config
	logger *slog.Logger
}

// NewRetryer creates a new Retryer. A nil config or logger falls back to
// DefaultConfig and slog.Default respectively.
func NewRetryer(config *Config, logger *slog.Logger) *Retryer {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Retryer{
		config: config,
		logger: logger,
	}
}

// Do executes operation until it succeeds, returns a non-retriable error,
// or MaxAttempts is reached.
func (r *Retryer) Do(ctx context.Context, operation Operation) error {
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.calculateDelay(attempt - 1)
			r.logger.Debug("retrying after delay",
				"attempt", attempt,
				"max_attempts", r.config.MaxAttempts,
				"delay", delay,
				"last_error", lastErr)

			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled by context: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("operation succeeded after retry",
					"attempt", attempt,
					"elapsed", time.Since(start))
			}
			return nil
		}

		lastErr = err

		if !r.isRetriable(err) {
			return err
		}
	}

	r.logger.Warn("max retry attempts reached",
		"attempts", r.config.MaxAttempts,
		"elapsed", time.Since(start),
		"last_error", lastErr)

	return fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

// calculateDelay calculates the delay before the next retry attempt.
func (r *Retryer) calculateDelay(attemptNumber int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attemptNumber-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	// Add jitter to prevent thundering herd.
	if r.config.Jitter {
		delay += rand.Float64() * 0.1 * delay
	}

	return time.Duration(delay)
}

// isRetriable determines if an error is worth another attempt.
func (r *Retryer) isRetriable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation/timeout is never retriable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		for _, status := range r.config.RetriableStatuses {
			if httpErr.StatusCode == status {
				return true
			}
		}
		return false
	}

	// Transient transport failures.
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// url.Error implements net.Error itself, so unwrap it first and judge
	// the transport error inside.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return r.isRetriable(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// HTTPError represents a non-2xx response from an upstream server.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (URL: %s)", e.StatusCode, e.Status, e.URL)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, status, url string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Status:     status,
		URL:        url,
	}
}
