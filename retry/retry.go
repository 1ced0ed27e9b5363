// Package retry provides retry logic with exponential backoff for
// calls to external APIs.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseWait   = 1 * time.Second
)

// RecoverableError marks an error as safe to retry.
type RecoverableError struct {
	err error
}

func (e *RecoverableError) Error() string {
	return e.err.Error()
}

func (e *RecoverableError) Unwrap() error {
	return e.err
}

// NewRecoverableError wraps an error to indicate the operation may be
// retried.
func NewRecoverableError(err error) error {
	return &RecoverableError{err: err}
}

// IsRecoverable reports whether the error was marked recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var recoverable *RecoverableError
	return errors.As(err, &recoverable)
}

// APIError is implemented by errors that carry an HTTP status code.
type APIError interface {
	error
	StatusCode() int
}

// ShouldRetry reports whether the given status code should trigger a retry.
func ShouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || // 429
		statusCode == http.StatusServiceUnavailable || // 503
		statusCode == http.StatusGatewayTimeout // 504
}

type retrier struct {
	maxRetries int
	baseWait   time.Duration
}

// Option configures a call to Do.
type Option func(*retrier)

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) Option {
	return func(r *retrier) { r.maxRetries = n }
}

// WithBaseWait sets the wait before the first retry. Subsequent waits
// grow exponentially with 10% jitter.
func WithBaseWait(d time.Duration) Option {
	return func(r *retrier) { r.baseWait = d }
}

// Do executes f, retrying recoverable failures with exponential backoff.
// An error is retried when it is marked with NewRecoverableError or when
// it implements APIError with a retryable status code. Any other error
// returns immediately.
func Do(ctx context.Context, f func() error, opts ...Option) error {
	r := &retrier{
		maxRetries: DefaultMaxRetries,
		baseWait:   DefaultBaseWait,
	}
	for _, opt := range opts {
		opt(r)
	}

	var lastError error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(r.baseWait) * math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		err := f()
		if err == nil {
			return nil
		}
		lastError = err

		if IsRecoverable(err) {
			continue
		}
		var apiErr APIError
		if errors.As(err, &apiErr) && ShouldRetry(apiErr.StatusCode()) {
			continue
		}
		return err
	}
	return lastError
}
