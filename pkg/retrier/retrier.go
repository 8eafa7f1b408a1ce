// Package retrier is the single retry-policy abstraction of the service.
// Extraction, write confirmation and the universe updater all parameterize
// it per call site instead of hand-rolling retry loops.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultAttempts        = 5
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultJitter          = 0.1
)

// Retrier executes a function up to a fixed number of attempts with a
// fixed or exponentially growing delay between them.
type Retrier struct {
	attempts        int
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	jitter          float64
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithAttempts sets the total number of attempts (minimum 1).
func WithAttempts(n int) Option {
	return func(r *Retrier) {
		if n < 1 {
			n = 1
		}
		r.attempts = n
	}
}

// WithInitialInterval sets the delay before the second attempt.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps the growing delay.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// New creates a Retrier with exponential backoff defaults.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		attempts:        defaultAttempts,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		jitter:          defaultJitter,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Fixed creates a Retrier with a constant pause between attempts and no
// jitter, matching the bare retry loops of the terminal and store call
// sites.
func Fixed(attempts int, pause time.Duration) *Retrier {
	return New(
		WithAttempts(attempts),
		WithInitialInterval(pause),
		WithMaxInterval(pause),
		WithMultiplier(1),
		WithJitter(0),
	)
}

// Do executes fn until it succeeds or the attempts are exhausted. The error
// of the last attempt is returned. Context cancellation interrupts the
// between-attempt wait.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	interval := r.initialInterval

	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			jitter := (rand.Float64()*2 - 1) * r.jitter * float64(interval)
			sleep := time.Duration(float64(interval) + jitter)
			if sleep < 0 {
				sleep = 0
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}

			interval = time.Duration(float64(interval) * r.multiplier)
			if interval > r.maxInterval {
				interval = r.maxInterval
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
	}

	return err
}

// DoWithData executes fn with retries and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
