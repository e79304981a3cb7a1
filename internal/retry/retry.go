// Package retry implements the bounded exponential-backoff-with-jitter
// executor of spec.md §4.6, generalizing the reconnect loop in
// apps/cli/internal/stream/stream.go (backoff doubling capped at
// maxBackoff, non-retryable StatusError classification for 401/403/404)
// from a single infinite reconnect loop into a bounded Do(ctx, op, cfg)
// helper used by the Offline Queue's send path.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config tunes the retry loop.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Classifier decides whether an error should be retried. Returning false
// stops the loop immediately, the way stream.go's Listen stops retrying
// on ErrEndpointDeleted or a 401/403/404 StatusError.
type Classifier func(err error) bool

// DefaultClassifier returns false for nil (not reached by Do). Any other
// error is retryable unless it implements NonRetryable() and that returns
// true, as transport.SendError does for 400/401/403/404. The error message
// and the error's type name are not inspected.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(interface{ NonRetryable() bool }); ok {
		return !ce.NonRetryable()
	}
	return true
}

// Result is the final outcome of a Do call.
type Result struct {
	Success      bool
	Value        any
	Err          error
	Attempts     int
	TotalElapsed time.Duration
}

// jitterSource is overridden in tests for deterministic delays.
var jitterSource = rand.Float64

// Do runs op up to cfg.MaxRetries+1 times. The delay before attempt i
// (0-indexed, i>=1) is min(InitialDelay*Multiplier^(i-1), MaxDelay) plus
// jitter uniform in +/-10% of that value, rounded to a non-negative
// integer duration. op is not retried once classify returns false for its
// error, and the operation is considered failed only after every attempt
// is exhausted.
func Do(ctx context.Context, classify Classifier, cfg Config, op func(ctx context.Context) (any, error)) Result {
	if classify == nil {
		classify = DefaultClassifier
	}
	start := time.Now()
	var lastErr error
	attempts := 0

	for i := 0; i <= cfg.MaxRetries; i++ {
		attempts++
		if i > 0 {
			delay := backoffDelay(cfg, i)
			select {
			case <-ctx.Done():
				return Result{Success: false, Err: ctx.Err(), Attempts: attempts, TotalElapsed: time.Since(start)}
			case <-time.After(delay):
			}
		}

		value, err := op(ctx)
		if err == nil {
			return Result{Success: true, Value: value, Attempts: attempts, TotalElapsed: time.Since(start)}
		}
		lastErr = err
		if !classify(err) {
			break
		}
	}

	return Result{Success: false, Err: lastErr, Attempts: attempts, TotalElapsed: time.Since(start)}
}

// backoffDelay computes the delay before attempt i (0-indexed, i>=1).
func backoffDelay(cfg Config, i int) time.Duration {
	base := float64(cfg.InitialDelay) * pow(cfg.Multiplier, i-1)
	if base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}
	jitter := (jitterSource()*2 - 1) * 0.1 * base
	d := base + jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func pow(base float64, exp int) float64 {
	if exp <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
