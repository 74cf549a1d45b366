package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/monitor"
)

// --- fakes ---

type fakeRefresher struct {
	mu      sync.Mutex
	n       int
	catalog domain.Catalog
}

func (f *fakeRefresher) Refresh(ctx context.Context, catalog domain.Catalog) (*monitor.Cycle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	f.catalog = catalog
	return &monitor.Cycle{ID: "cycle"}, false
}

func (f *fakeRefresher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// --- tests ---

func TestRechecker_RunDoesImmediatePass(t *testing.T) {
	ref := &fakeRefresher{}
	cat := domain.Catalog{"web": {"https://example.com"}}
	rc, err := NewRechecker(zap.NewNop(), ref, cat, "@every 1h", time.UTC)
	if err != nil {
		t.Fatalf("NewRechecker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rc.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for ref.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if ref.calls() != 1 {
		t.Fatalf("expected exactly the immediate pass, got %d", ref.calls())
	}
	if !ref.catalog.Contains("https://example.com") {
		t.Fatalf("catalog not passed through: %v", ref.catalog)
	}
}

func TestRechecker_DisabledWithoutSchedule(t *testing.T) {
	ref := &fakeRefresher{}
	rc, err := NewRechecker(zap.NewNop(), ref, domain.Catalog{}, "", nil)
	if err != nil {
		t.Fatalf("NewRechecker: %v", err)
	}
	if err := rc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ref.calls() != 0 {
		t.Fatalf("disabled rechecker should not run cycles")
	}
}

func TestNewRechecker_RejectsBadSchedule(t *testing.T) {
	if _, err := NewRechecker(zap.NewNop(), &fakeRefresher{}, domain.Catalog{}, "every tuesday", nil); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestScheduleFor(t *testing.T) {
	if got := ScheduleFor("*/5 * * * *", time.Minute); got != "*/5 * * * *" {
		t.Fatalf("explicit schedule should win, got %q", got)
	}
	if got := ScheduleFor("", 180*time.Second); got != "@every 3m0s" {
		t.Fatalf("unexpected schedule %q", got)
	}
	if got := ScheduleFor("", 0); got != "" {
		t.Fatalf("zero interval should disable, got %q", got)
	}
}

func TestLatest_KeepsMostRecentCycle(t *testing.T) {
	l := NewLatest(0)
	if _, ok := l.Get(); ok {
		t.Fatalf("expected empty cache")
	}
	l.ObserveCycle(&monitor.Cycle{ID: "one"})
	l.ObserveCycle(&monitor.Cycle{ID: "two"})
	c, ok := l.Get()
	if !ok || c.ID != "two" {
		t.Fatalf("expected latest cycle, got %+v", c)
	}
}

func TestLatest_Expires(t *testing.T) {
	l := NewLatest(10 * time.Millisecond)
	l.ObserveCycle(&monitor.Cycle{ID: "one"})
	time.Sleep(30 * time.Millisecond)
	if _, ok := l.Get(); ok {
		t.Fatalf("expected cached cycle to expire")
	}
}
