// Package monitor runs check cycles: probe every site, merge the results
// into the stored history and return per-category status with metrics.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hamed0406/sitestatus/internal/clock"
	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/history"
	"github.com/hamed0406/sitestatus/internal/probe"
	"github.com/hamed0406/sitestatus/internal/repo"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 8
)

type Options struct {
	// Timeout bounds each individual probe.
	Timeout time.Duration
	// Concurrency caps in-flight probes per cycle.
	Concurrency int
	// DNSDiagnostics adds a DNS lookup to the log line of unreachable sites.
	DNSDiagnostics bool
}

type Engine struct {
	log     *zap.Logger
	prober  probe.Prober
	store   repo.HistoryStore
	updater *history.Updater
	clock   clock.Clock
	opts    Options

	// mu serializes load, merge and save so concurrent cycles never lose writes.
	mu sync.Mutex
	sf singleflight.Group

	obsMu     sync.RWMutex
	observers []Observer
}

func New(log *zap.Logger, p probe.Prober, store repo.HistoryStore, u *history.Updater, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if u == nil {
		u = history.NewUpdater(history.DefaultLimit, clock.Real)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Engine{
		log:     log,
		prober:  p,
		store:   store,
		updater: u,
		clock:   u.Clock,
		opts:    opts,
	}
}

// Subscribe registers o to be called after every cycle.
func (e *Engine) Subscribe(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

// RunCycle probes every distinct site of catalog once, merges the results
// into the stored history, persists it once and returns the fresh status of
// every site grouped by category. A failed save, or a load failure other
// than a missing or corrupt document, leaves Cycle.Persisted false; the
// results are returned regardless.
func (e *Engine) RunCycle(ctx context.Context, catalog domain.Catalog) *Cycle {
	c := &Cycle{
		ID:         uuid.NewString(),
		StartedAt:  e.clock.Now(),
		Categories: make(map[string]map[domain.SiteKey]SiteStatus, len(catalog)),
	}
	sites := catalog.Sites()
	results := e.probeAll(ctx, c.ID, sites)

	statuses := make(map[domain.SiteKey]SiteStatus, len(sites))
	func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		doc, writable := e.load(ctx)
		for i, url := range sites {
			rec, tr := e.updater.Apply(doc, url, results[i])
			statuses[url] = newSiteStatus(results[i], rec, e.clock.Now())
			if tr != history.NoChange {
				c.Changes = append(c.Changes, SiteChange{URL: url, Transition: tr, Probe: results[i], Record: rec})
			}
		}
		if writable {
			c.Persisted = e.save(ctx, doc, c.ID)
		}
	}()

	for _, name := range catalog.Categories() {
		group := make(map[domain.SiteKey]SiteStatus, len(catalog[name]))
		for _, url := range catalog[name] {
			group[url] = statuses[url]
		}
		c.Categories[name] = group
	}
	c.FinishedAt = e.clock.Now()

	e.log.Info("cycle_done",
		zap.String("cycle_id", c.ID),
		zap.Int("sites", len(sites)),
		zap.Int("down", c.Down()),
		zap.Int("changes", len(c.Changes)),
		zap.Bool("persisted", c.Persisted),
		zap.Duration("took", c.FinishedAt.Sub(c.StartedAt)),
	)
	e.notify(c)
	return c
}

// Refresh is RunCycle with concurrent callers collapsed into one cycle.
// shared is true when the returned cycle was started by another caller.
// The cycle does not inherit ctx cancellation, only its values.
func (e *Engine) Refresh(ctx context.Context, catalog domain.Catalog) (c *Cycle, shared bool) {
	v, _, shared := e.sf.Do("cycle", func() (any, error) {
		return e.RunCycle(context.WithoutCancel(ctx), catalog), nil
	})
	return v.(*Cycle), shared
}

// CheckSite probes a single URL, merges and persists the result. The status
// is valid even when the returned error reports a failed save.
func (e *Engine) CheckSite(ctx context.Context, url domain.SiteKey) (SiteStatus, error) {
	res := e.probeOne(ctx, "", url)

	e.mu.Lock()
	defer e.mu.Unlock()

	doc, writable := e.load(ctx)
	rec, _ := e.updater.Apply(doc, url, res)
	st := newSiteStatus(res, rec, e.clock.Now())
	if !writable {
		return st, errHistoryUnavailable
	}
	if err := e.store.Save(ctx, doc); err != nil {
		e.log.Error("history_save_failed", zap.String("url", url), zap.Error(err))
		return st, err
	}
	return st, nil
}

// Snapshot returns the stored document without probing anything.
func (e *Engine) Snapshot(ctx context.Context) *domain.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, _ := e.load(ctx)
	return doc
}

func (e *Engine) probeAll(ctx context.Context, cycleID string, sites []domain.SiteKey) []domain.ProbeResult {
	results := make([]domain.ProbeResult, len(sites))
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, url := range sites {
		g.Go(func() error {
			results[i] = e.probeOne(ctx, cycleID, url)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) probeOne(ctx context.Context, cycleID string, url domain.SiteKey) domain.ProbeResult {
	if !probe.ValidTarget(url) {
		e.log.Warn("probe_invalid_url", zap.String("cycle_id", cycleID), zap.String("url", url))
		return domain.ProbeResult{Reason: "invalid_url"}
	}

	pctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	res := e.prober.Probe(pctx, url)

	if res.StatusCode == 0 {
		fields := []zap.Field{
			zap.String("cycle_id", cycleID),
			zap.String("url", url),
			zap.String("reason", res.Reason),
			zap.Int64("latency_ms", res.LatencyMS),
		}
		if e.opts.DNSDiagnostics {
			d := probe.CheckDNS(ctx, probe.HostOf(url))
			fields = append(fields,
				zap.String("dns_class", d.Class),
				zap.Strings("dns_nameservers", d.Nameservers),
				zap.String("dns_error", d.ResolverError),
			)
		}
		e.log.Warn("probe_failed", fields...)
	} else {
		e.log.Debug("probe_done",
			zap.String("cycle_id", cycleID),
			zap.String("url", url),
			zap.Int("status", res.StatusCode),
			zap.Int64("latency_ms", res.LatencyMS),
		)
	}
	return res
}

// errHistoryUnavailable is returned by CheckSite when the stored history
// could not be read and the result was therefore not saved.
var errHistoryUnavailable = errors.New("history store unavailable, result not saved")

// load always returns a document to merge into. A missing or corrupt document
// is replaced by an empty one that may be saved over it. Any other failure
// also yields an empty document, but writable is false so the stored history
// is left alone.
func (e *Engine) load(ctx context.Context) (doc *domain.Document, writable bool) {
	doc, err := e.store.Load(ctx)
	switch {
	case err == nil:
		return doc.Normalize(), true
	case errors.Is(err, repo.ErrNotFound):
		e.log.Info("history_not_found")
		return domain.NewDocument(), true
	case errors.Is(err, repo.ErrCorrupt):
		e.log.Warn("history_load_failed", zap.Error(err))
		return domain.NewDocument(), true
	default:
		e.log.Error("history_unavailable", zap.Error(err))
		return domain.NewDocument(), false
	}
}

func (e *Engine) save(ctx context.Context, doc *domain.Document, cycleID string) bool {
	if err := e.store.Save(ctx, doc); err != nil {
		e.log.Error("history_save_failed", zap.String("cycle_id", cycleID), zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) notify(c *Cycle) {
	e.obsMu.RLock()
	obs := make([]Observer, len(e.observers))
	copy(obs, e.observers)
	e.obsMu.RUnlock()
	for _, o := range obs {
		o.ObserveCycle(c)
	}
}
