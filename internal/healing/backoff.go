package healing

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// backoffDelay computes the delay before retry number attempt (0-based):
// exponential growth from InitialDelay, capped at MaxDelay, with
// symmetric jitter of up to JitterFactor in either direction.
func backoffDelay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
	if ceiling := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && d > ceiling {
		d = ceiling
	}
	jitter := 1 + cfg.JitterFactor*(2*rand.Float64()-1)
	return time.Duration(d * jitter)
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
