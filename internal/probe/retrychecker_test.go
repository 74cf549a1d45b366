package probe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/sitestatus/internal/domain"
)

// fake prober you can control
type fakeProber struct {
	results []domain.ProbeResult
	i       int
}

func (f *fakeProber) Probe(ctx context.Context, target string) domain.ProbeResult {
	if f.i >= len(f.results) {
		return domain.ProbeResult{Reason: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func TestRetryProber_SucceedsAfterRetry(t *testing.T) {
	f := &fakeProber{
		results: []domain.ProbeResult{
			{Reason: "timeout"},
			{StatusCode: 200, LatencyMS: 4},
		},
	}
	rp := &RetryProber{Inner: f, Attempts: 3, Backoff: 10 * time.Millisecond}
	out := rp.Probe(context.Background(), "https://example.com")
	if !out.Up() {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("expected 2 probes, got %d", f.i)
	}
}

func TestRetryProber_AllFailAnnotates(t *testing.T) {
	f := &fakeProber{
		results: []domain.ProbeResult{
			{Reason: "dns"},
			{Reason: "dns"},
		},
	}
	rp := &RetryProber{Inner: f, Attempts: 2}
	out := rp.Probe(context.Background(), "https://example.com")
	if out.Up() {
		t.Fatalf("expected failure, got success")
	}
	if !strings.HasSuffix(out.Reason, "(after retries)") {
		t.Fatalf("expected retry annotation, got %q", out.Reason)
	}
}

func TestRetryProber_StopsOnCancelledContext(t *testing.T) {
	f := &fakeProber{results: []domain.ProbeResult{{Reason: "timeout"}, {StatusCode: 200}}}
	rp := &RetryProber{Inner: f, Attempts: 2, Backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := rp.Probe(ctx, "https://example.com")
	if out.Up() || f.i != 1 {
		t.Fatalf("cancelled context should stop retries, got %+v after %d probes", out, f.i)
	}
}

func TestWrap_PassThroughWithoutRetries(t *testing.T) {
	f := &fakeProber{}
	if Wrap(f, 1, time.Second) != Prober(f) {
		t.Fatalf("Wrap with 1 attempt should return the inner prober")
	}
	if _, ok := Wrap(f, 3, 0).(*RetryProber); !ok {
		t.Fatalf("Wrap with 3 attempts should return a RetryProber")
	}
}
