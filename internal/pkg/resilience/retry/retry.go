// Package retry provides a configurable retry mechanism for operations that may fail temporarily.
// It wraps the retry-go package from Avast and exposes a small interface with functional
// options, using exponential backoff between attempts.
//
// Basic usage:
//
//	r := retry.New(retry.WithAttempts(3))
//	err := r.Execute(ctx, func() error {
//	    _, err := provider.GetNetwork(ctx)
//	    return err
//	})
package retry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry runs an operation until it succeeds, attempts are exhausted or ctx is done.
type Retry interface {
	// Execute runs operation with the configured retry policy. It returns nil
	// on success, otherwise the last error (or all of them when
	// WithLastErrorOnly(false) is set). Context cancellation stops retrying.
	Execute(ctx context.Context, operation func() error) error
}

// config holds internal settings for the retry mechanism.
type config struct {
	attempts    uint                     // maximum number of attempts, the first one included
	delay       time.Duration            // base delay between attempts
	maxDelay    time.Duration            // cap for the exponential backoff
	lastErrOnly bool                     // whether to return only the last error
	onRetry     func(n uint, err error) // observer invoked after each failed attempt
}

// Option defines a functional option for configuring the retry mechanism.
type Option func(*config)

// retrier implements the Retry interface using the retry-go package.
type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New creates a Retry configured with opts.
//
// Defaults:
//   - attempts:    3 (1 initial attempt + 2 retries)
//   - delay:       1 second
//   - maxDelay:    5 seconds
//   - lastErrOnly: true
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       1 * time.Second,
		maxDelay:    5 * time.Second,
		lastErrOnly: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{
		cfg: cfg,
	}
}

// Execute implements the Retry interface.
func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	options := []retry.Option{
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
		retry.Context(ctx),
	}

	if r.cfg.onRetry != nil {
		options = append(options, retry.OnRetry(r.cfg.onRetry))
	}

	return retry.Do(operation, options...)
}

// WithAttempts sets the maximum number of attempts (including the initial attempt).
// Zero retries until the operation succeeds or ctx is done. Default: 3.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay between attempts. Default: 1 second.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the exponential backoff. Default: 5 seconds.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithLastErrorOnly sets whether to return only the last error. Default: true.
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// WithOnRetry registers f to be called after every failed attempt with the
// zero-based attempt number and its error.
func WithOnRetry(f func(n uint, err error)) Option {
	return func(c *config) {
		c.onRetry = f
	}
}
