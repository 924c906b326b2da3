// Package retry re-runs idempotent adapter calls that failed with a transient
// error. The adapter never retries on its own; hosts opt in here.
package retry

import (
	"context"
	stderr "errors"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/objectfs/s3vfs/pkg/errors"
)

// Config defines retry behavior configuration
type Config struct {
	// MaxAttempts counts the initial attempt. 1 disables retries.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`

	// Jitter spreads each delay by up to ±20%.
	Jitter bool `yaml:"jitter" json:"jitter"`

	// RetryableErrors lists codes retried even when the error is not flagged Retryable.
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors"`

	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig retries timeouts and unreachable networks three times.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeTimeout,
			errors.ErrCodeNetworkUnreachable,
		},
	}
}

// Retryer handles retry logic with exponential backoff
type Retryer struct {
	config Config
}

// New creates a Retryer, filling zero fields from DefaultConfig.
func New(config Config) *Retryer {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = defaults.Multiplier
	}
	return &Retryer{config: config}
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts.
// The last error is returned unchanged so its code survives. Cancelling ctx
// while waiting yields an ErrCodeCancelled error.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(err, attempt-1, lastErr)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.shouldRetry(err, attempt) {
			return err
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return cancelled(ctx.Err(), attempt, lastErr)
		case <-timer.C:
		}
	}
	return lastErr
}

func cancelled(cause error, attempts int, lastErr error) error {
	e := errors.Wrap(cause, errors.ErrCodeCancelled, "operation cancelled").
		WithComponent("retry").
		WithContext("attempts", strconv.Itoa(attempts))
	if lastErr != nil {
		e = e.WithContext("last_error", lastErr.Error())
	}
	return e
}

func (r *Retryer) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxAttempts {
		return false
	}

	var vfsErr *errors.VFSError
	if !stderr.As(err, &vfsErr) {
		return false
	}
	if vfsErr.Code == errors.ErrCodeCancelled {
		return false
	}
	if vfsErr.Retryable {
		return true
	}
	for _, code := range r.config.RetryableErrors {
		if vfsErr.Code == code {
			return true
		}
	}
	return false
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped at MaxDelay.
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		delay += delay * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

// WithOnRetry returns a new Retryer with a retry callback
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	config := r.config
	config.OnRetry = callback
	return New(config)
}
