package dispatch

import (
	"context"
	"time"

	"promptforge/internal/config"
	"promptforge/internal/discovery"
	"promptforge/internal/logging"
	"promptforge/internal/providers"
	"promptforge/internal/ratelimit"
)

// Options tunes one batch run.
type Options struct {
	// RetryFactor multiplies the pool size to give the attempt budget per item.
	RetryFactor int
	// BaseDelay is the pause after a success with a single credential.
	BaseDelay time.Duration
	// MinDelay is the floor for the pause after a success.
	MinDelay time.Duration
	// RetryDelay is the pause between failed attempts.
	RetryDelay time.Duration

	ExpectJSON      bool
	Lenient         bool
	ResponseField   string
	MaxOutputTokens int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		RetryFactor:   2,
		BaseDelay:     5 * time.Second,
		MinDelay:      time.Second,
		RetryDelay:    time.Second,
		ExpectJSON:    true,
		Lenient:       true,
		ResponseField: "prompt",
	}
}

// OptionsFromConfig builds Options from the dispatch configuration.
func OptionsFromConfig(cfg config.DispatchConfig) Options {
	return Options{
		RetryFactor:   cfg.RetryFactor,
		BaseDelay:     cfg.BaseDelay,
		MinDelay:      cfg.MinDelay,
		RetryDelay:    cfg.RetryDelay,
		ExpectJSON:    cfg.ExpectJSON,
		Lenient:       cfg.Lenient,
		ResponseField: cfg.ResponseField,
	}
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Dependencies are the collaborators of a Session. Provider and Discoverer
// are required; the rest default to no-ops.
type Dependencies struct {
	Provider   providers.Provider
	Discoverer *discovery.Discoverer
	Limiter    ratelimit.Limiter
	Sink       logging.Sink
	Sleep      SleepFunc
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PacingDelay is the pause after a successful call: base divided by the
// pool size, clamped to [min, base]. Smaller pools pause longer.
func PacingDelay(base, min time.Duration, poolSize int) time.Duration {
	if poolSize <= 1 {
		return base
	}
	d := base / time.Duration(poolSize)
	if d < min {
		d = min
	}
	if d > base {
		d = base
	}
	return d
}
