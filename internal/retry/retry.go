package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config shapes the backoff schedule: waits start at InitialWait and grow by
// Multiplier per attempt, capped at MaxWait.
type Config struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}
}

// WithBackoff runs fn until it succeeds, attempts run out, or ctx is done.
// Waits carry up to 30% jitter so synchronized retries spread out.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	wait := cfg.InitialWait
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		jittered := wait + time.Duration(rand.Float64()*0.3*float64(wait))
		if jittered > cfg.MaxWait {
			jittered = cfg.MaxWait
		}

		timer := time.NewTimer(jittered)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	return lastErr
}
