// Package retry runs an operation with exponential backoff on top of retry-go.
// Callers stop the loop early by wrapping an error with Unrecoverable.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry runs after a failed attempt that will be retried; attempt is zero-based.
	OnRetry func(attempt uint, err error)
}

// DefaultConfig suits outbound calls to the order system: five attempts spread
// over roughly fifteen seconds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}

// Do calls fn until it succeeds, returns an Unrecoverable error, the attempts run
// out or ctx ends. The last error is returned unwrapped.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if cfg.OnRetry != nil {
		opts = append(opts, retry.OnRetry(cfg.OnRetry))
	}
	return retry.Do(fn, opts...)
}
