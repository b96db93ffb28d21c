package retry

import (
	"context"
	"fmt"
	"time"
)

// Default backoff parameters, matching the budget used for serial port opens.
const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 5 * time.Second
)

// Options controls the backoff schedule for Do.
type Options struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration

	// Multiplier scales the delay after each failure.
	Multiplier float64

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// sleep is overridable in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the standard backoff schedule:
// 10 attempts, 200ms base delay, 2x multiplier, 5s cap.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
	}
}

// ExhaustedError is returned when an operation failed on every attempt.
// It carries the attempt count and the last underlying cause.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes the last underlying cause for errors.Is/As.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do runs op until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled between attempts. The delay starts at BaseDelay and is
// multiplied by Multiplier after each failure, capped at MaxDelay.
//
// A success on any attempt returns nil immediately. Exhaustion returns an
// *ExhaustedError wrapping the last cause. Context cancellation is only
// observed between attempts; a running op is never interrupted.
func Do(ctx context.Context, op func() error, opts Options) error {
	opts = opts.withDefaults()

	delay := opts.BaseDelay
	var last error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		last = op()
		if last == nil {
			return nil
		}

		if attempt == opts.MaxAttempts {
			break
		}

		if err := opts.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry: %w (last attempt error: %w)", err, last)
		}

		delay = time.Duration(float64(delay) * opts.Multiplier)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return &ExhaustedError{Attempts: opts.MaxAttempts, Last: last}
}

// withDefaults fills zero-valued fields with the standard schedule.
func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Multiplier <= 1 {
		o.Multiplier = DefaultMultiplier
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
	return o
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
