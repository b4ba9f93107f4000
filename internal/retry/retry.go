// Package retry runs connector calls with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/rustyeddy/cryptotrader/internal/errs"
)

// Config holds retry configuration.
type Config struct {
	Attempts int           `mapstructure:"attempts" yaml:"attempts"`
	Min      time.Duration `mapstructure:"min" yaml:"min"`
	Max      time.Duration `mapstructure:"max" yaml:"max"`
	Factor   float64       `mapstructure:"factor" yaml:"factor"`
	Jitter   bool          `mapstructure:"jitter" yaml:"jitter"`
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		Attempts: 5,
		Min:      200 * time.Millisecond,
		Max:      10 * time.Second,
		Factor:   2,
		Jitter:   true,
	}
}

func (c Config) backoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    c.Min,
		Max:    c.Max,
		Factor: c.Factor,
		Jitter: c.Jitter,
	}
}

// Do calls fn until it succeeds, returns a non-transient error, the attempts
// are exhausted or ctx is done. Only errs.IsTransient errors are retried.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	b := cfg.backoff()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !errs.IsTransient(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// Run is Do for calls without a result.
func Run(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
