package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/clock"
	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/history"
	"github.com/hamed0406/sitestatus/internal/probe"
	"github.com/hamed0406/sitestatus/internal/repo"
	"github.com/hamed0406/sitestatus/internal/repo/memory"
)

// --- fakes ---

// scripted answers with a fixed status per URL; unknown URLs hang until the deadline.
type scripted struct {
	mu     sync.Mutex
	status map[string]int
	calls  map[string]int
}

func newScripted(status map[string]int) *scripted {
	return &scripted{status: status, calls: map[string]int{}}
}

func (s *scripted) Probe(ctx context.Context, target string) domain.ProbeResult {
	s.mu.Lock()
	s.calls[target]++
	code, ok := s.status[target]
	s.mu.Unlock()
	if !ok {
		<-ctx.Done()
		return domain.ProbeResult{StatusCode: 0, LatencyMS: 50, Reason: "timeout"}
	}
	return domain.ProbeResult{StatusCode: code, LatencyMS: 7}
}

func (s *scripted) callsFor(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

type brokenStore struct {
	loadErr error
	saveErr error
	saved   *domain.Document
}

func (b *brokenStore) Load(ctx context.Context) (*domain.Document, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return domain.NewDocument(), nil
}

func (b *brokenStore) Save(ctx context.Context, doc *domain.Document) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	b.saved = doc.Clone()
	return nil
}

// flakyStore fails the next Load once with failNext, otherwise delegates.
type flakyStore struct {
	*memory.Store
	failNext error
}

func (f *flakyStore) Load(ctx context.Context) (*domain.Document, error) {
	if err := f.failNext; err != nil {
		f.failNext = nil
		return nil, err
	}
	return f.Store.Load(ctx)
}

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newEngine(p probe.Prober, store *memory.Store, clk *clock.Manual, limit int) *Engine {
	return New(zap.NewNop(), p, store, history.NewUpdater(limit, clk), Options{
		Timeout:     50 * time.Millisecond,
		Concurrency: 4,
	})
}

// --- tests ---

func TestRunCycle_SlowSiteDoesNotAffectOthers(t *testing.T) {
	p := newScripted(map[string]int{"https://b.example": 200, "https://c.example": 500})
	store := memory.New()
	e := newEngine(p, store, clock.NewManual(t0), 100)

	cat := domain.Catalog{"web": {"https://a.example", "https://b.example", "https://c.example"}}
	c := e.RunCycle(context.Background(), cat)

	web := c.Categories["web"]
	require.Len(t, web, 3)
	assert.Equal(t, 0, web["https://a.example"].Probe.StatusCode)
	assert.Equal(t, 200, web["https://b.example"].Probe.StatusCode)
	assert.Equal(t, 500, web["https://c.example"].Probe.StatusCode)

	assert.Equal(t, 100.0, web["https://b.example"].Uptime)
	assert.Equal(t, 0.0, web["https://c.example"].Uptime)
	assert.True(t, c.Persisted)
	assert.Equal(t, 2, c.Down())
	assert.NotEmpty(t, c.ID)

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Sites, 3)
	assert.Equal(t, t0.Unix(), doc.LastUpdate)
}

func TestRunCycle_RepeatedCyclesGrowHistoryInOrder(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 200})
	clk := clock.NewManual(t0)
	e := newEngine(p, memory.New(), clk, 2)
	cat := domain.Catalog{"web": {"https://a.example"}}

	e.RunCycle(context.Background(), cat)
	clk.Advance(time.Minute)
	c2 := e.RunCycle(context.Background(), cat)
	h := c2.Categories["web"]["https://a.example"].Record.History
	require.Len(t, h, 2)
	assert.Less(t, h[0].Timestamp, h[1].Timestamp)

	clk.Advance(time.Minute)
	c3 := e.RunCycle(context.Background(), cat)
	h = c3.Categories["web"]["https://a.example"].Record.History
	require.Len(t, h, 2, "history stays bounded by the limit")
	assert.Equal(t, t0.Add(2*time.Minute).Unix(), h[1].Timestamp)
	assert.Equal(t, 3, p.callsFor("https://a.example"))
}

func TestRunCycle_ConcurrentCyclesDoNotLoseWrites(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 200, "https://b.example": 503})
	store := memory.New()
	e := newEngine(p, store, clock.NewManual(t0), 100)
	cat := domain.Catalog{"web": {"https://a.example", "https://b.example"}}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.RunCycle(context.Background(), cat)
		}()
	}
	wg.Wait()

	doc, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Sites["https://a.example"].History, 2)
	assert.Len(t, doc.Sites["https://b.example"].History, 2)
}

func TestRunCycle_DuplicateURLProbedOnce(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 200, "https://r.example": 301})
	e := newEngine(p, memory.New(), clock.NewManual(t0), 100)
	cat := domain.Catalog{
		"web":      {"https://a.example"},
		"redirect": {"https://r.example", "https://a.example"},
	}

	c := e.RunCycle(context.Background(), cat)

	assert.Equal(t, 1, p.callsFor("https://a.example"))
	assert.Equal(t, c.Categories["web"]["https://a.example"], c.Categories["redirect"]["https://a.example"])
	assert.Len(t, c.Categories["redirect"]["https://a.example"].Record.History, 1)
	assert.Equal(t, 2, c.Sites())
}

func TestRunCycle_SaveFailureStillReturnsResults(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 200})
	store := &brokenStore{saveErr: errors.New("disk full")}
	e := New(zap.NewNop(), p, store, history.NewUpdater(10, clock.NewManual(t0)), Options{})

	c := e.RunCycle(context.Background(), domain.Catalog{"web": {"https://a.example"}})

	assert.False(t, c.Persisted)
	st := c.Categories["web"]["https://a.example"]
	assert.Equal(t, 200, st.Probe.StatusCode)
	assert.Len(t, st.Record.History, 1)
}

func TestRunCycle_UnreadableHistoryStartsEmpty(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 200})
	store := &brokenStore{loadErr: fmt.Errorf("decode sites_status.json: %w: invalid character", repo.ErrCorrupt)}
	e := New(zap.NewNop(), p, store, history.NewUpdater(10, clock.NewManual(t0)), Options{})

	c := e.RunCycle(context.Background(), domain.Catalog{"web": {"https://a.example"}})

	assert.True(t, c.Persisted)
	require.NotNil(t, store.saved)
	assert.Len(t, store.saved.Sites["https://a.example"].History, 1)
}

func TestRunCycle_TransientLoadErrorKeepsStoredHistory(t *testing.T) {
	const site = "https://a.example"
	p := newScripted(map[string]int{site: 200})
	store := &flakyStore{Store: memory.New()}
	clk := clock.NewManual(t0)
	e := New(zap.NewNop(), p, store, history.NewUpdater(100, clk), Options{Timeout: 50 * time.Millisecond})
	catalog := domain.Catalog{"web": {site}}

	for range 5 {
		clk.Advance(time.Minute)
		require.True(t, e.RunCycle(context.Background(), catalog).Persisted)
	}
	saves := store.Saves()

	store.failNext = errors.New("dial tcp 10.0.0.5:5432: i/o timeout")
	clk.Advance(time.Minute)
	c := e.RunCycle(context.Background(), catalog)

	assert.False(t, c.Persisted)
	assert.Equal(t, 200, c.Categories["web"][site].Probe.StatusCode)
	assert.Equal(t, saves, store.Saves(), "nothing written after a failed load")

	doc, err := store.Store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Sites[site].History, 5)

	clk.Advance(time.Minute)
	require.True(t, e.RunCycle(context.Background(), catalog).Persisted)
	doc, err = store.Store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Sites[site].History, 6)
}

func TestCheckSite_TransientLoadErrorSkipsSave(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 500})
	store := &flakyStore{Store: memory.New(), failNext: errors.New("connection reset by peer")}
	e := New(zap.NewNop(), p, store, history.NewUpdater(100, clock.NewManual(t0)), Options{Timeout: 50 * time.Millisecond})

	st, err := e.CheckSite(context.Background(), "https://a.example")

	require.Error(t, err)
	assert.Equal(t, 500, st.Probe.StatusCode)
	assert.Equal(t, 0, store.Saves())
}

func TestRunCycle_InvalidURLIsStatusZeroWithoutProbing(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 200})
	e := newEngine(p, memory.New(), clock.NewManual(t0), 100)

	c := e.RunCycle(context.Background(), domain.Catalog{"web": {"not a url", "https://a.example"}})

	bad := c.Categories["web"]["not a url"]
	assert.Equal(t, 0, bad.Probe.StatusCode)
	assert.Equal(t, "invalid_url", bad.Probe.Reason)
	assert.NotNil(t, bad.Record.DownSince)
	assert.Equal(t, 0, p.callsFor("not a url"))
	assert.Equal(t, 200, c.Categories["web"]["https://a.example"].Probe.StatusCode)
}

func TestRunCycle_ObserversSeeTransitions(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 500})
	clk := clock.NewManual(t0)
	e := newEngine(p, memory.New(), clk, 100)

	var got []*Cycle
	e.Subscribe(ObserverFunc(func(c *Cycle) { got = append(got, c) }))

	cat := domain.Catalog{"web": {"https://a.example"}}
	e.RunCycle(context.Background(), cat)
	clk.Advance(90 * time.Second)
	c2 := e.RunCycle(context.Background(), cat)

	require.Len(t, got, 2)
	require.Len(t, got[0].Changes, 1)
	assert.Equal(t, history.WentDown, got[0].Changes[0].Transition)
	assert.Empty(t, got[1].Changes, "second failure continues the streak")
	assert.Equal(t, "1 minute", c2.Categories["web"]["https://a.example"].DownFor)

	p.mu.Lock()
	p.status["https://a.example"] = 200
	p.mu.Unlock()
	c3 := e.RunCycle(context.Background(), cat)
	require.Len(t, c3.Changes, 1)
	assert.Equal(t, history.Recovered, c3.Changes[0].Transition)
	assert.Empty(t, c3.Categories["web"]["https://a.example"].DownFor)
}

func TestRefresh_CollapsesConcurrentCallers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	p := probe.ProberFunc(func(ctx context.Context, target string) domain.ProbeResult {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		return domain.ProbeResult{StatusCode: 200, LatencyMS: 1}
	})
	e := New(zap.NewNop(), p, memory.New(), history.NewUpdater(10, clock.NewManual(t0)), Options{Timeout: time.Second})
	cat := domain.Catalog{"web": {"https://a.example"}}

	type out struct {
		c      *Cycle
		shared bool
	}
	results := make(chan out, 2)
	go func() {
		c, shared := e.Refresh(context.Background(), cat)
		results <- out{c, shared}
	}()
	<-entered
	go func() {
		c, shared := e.Refresh(context.Background(), cat)
		results <- out{c, shared}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	a, b := <-results, <-results
	assert.Equal(t, a.c.ID, b.c.ID)
	assert.True(t, a.shared && b.shared)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheckSite_ProbesAndPersists(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 200})
	store := memory.New()
	e := newEngine(p, store, clock.NewManual(t0), 100)

	st, err := e.CheckSite(context.Background(), "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, 200, st.Probe.StatusCode)
	assert.Equal(t, t0.Unix(), *st.Record.LastUp)
	assert.Equal(t, 1, store.Saves())
}

func TestCheckSite_ReturnsStatusOnSaveError(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 503})
	e := New(zap.NewNop(), p, &brokenStore{saveErr: errors.New("read-only")}, history.NewUpdater(10, clock.NewManual(t0)), Options{})

	st, err := e.CheckSite(context.Background(), "https://a.example")
	require.Error(t, err)
	assert.Equal(t, 503, st.Probe.StatusCode)
	assert.Equal(t, "", st.DownFor, "went down this instant")
}

func TestSnapshot_DoesNotProbe(t *testing.T) {
	p := newScripted(map[string]int{"https://a.example": 200})
	store := memory.New()
	e := newEngine(p, store, clock.NewManual(t0), 100)

	assert.Empty(t, e.Snapshot(context.Background()).Sites)
	e.RunCycle(context.Background(), domain.Catalog{"web": {"https://a.example"}})

	doc := e.Snapshot(context.Background())
	assert.Len(t, doc.Sites["https://a.example"].History, 1)
	assert.Equal(t, 1, p.callsFor("https://a.example"))
}
