package probe

import (
	"context"
	"time"

	"github.com/hamed0406/sitestatus/internal/domain"
)

// RetryProber re-probes a failing site before reporting it down.
// Attempts below 2 make it a pass-through.
type RetryProber struct {
	Inner    Prober
	Attempts int
	Backoff  time.Duration
}

func (r *RetryProber) Probe(ctx context.Context, target string) domain.ProbeResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last domain.ProbeResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Probe(ctx, target)
		if last.Up() || last.Reason == "invalid_url" {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last
		case <-time.After(r.Backoff):
		}
	}
	if attempts > 1 && last.Reason != "" {
		last.Reason += " (after retries)"
	}
	return last
}

// Wrap returns p unchanged when no retries are configured.
func Wrap(p Prober, attempts int, backoff time.Duration) Prober {
	if attempts < 2 {
		return p
	}
	return &RetryProber{Inner: p, Attempts: attempts, Backoff: backoff}
}
