package monitor

import (
	"time"

	"github.com/hamed0406/sitestatus/internal/availability"
	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/history"
)

// SiteStatus is what the status page gets for one site: the fresh probe,
// the stored record after merging it, and the derived metrics.
type SiteStatus struct {
	Probe   domain.ProbeResult `json:"status"`
	Record  domain.SiteRecord  `json:"history"`
	Uptime  float64            `json:"uptime"`
	DownFor string             `json:"down_for,omitempty"`
}

func newSiteStatus(res domain.ProbeResult, rec domain.SiteRecord, now time.Time) SiteStatus {
	return SiteStatus{
		Probe:   res,
		Record:  rec,
		Uptime:  availability.Uptime(rec.History),
		DownFor: availability.DownFor(rec, now),
	}
}

// SiteChange is a state transition observed during a cycle.
type SiteChange struct {
	URL        domain.SiteKey
	Transition history.Transition
	Probe      domain.ProbeResult
	Record     domain.SiteRecord
}

// Cycle is the result of checking every site in a catalog once.
type Cycle struct {
	ID         string                                   `json:"id"`
	StartedAt  time.Time                                `json:"started_at"`
	FinishedAt time.Time                                `json:"finished_at"`
	Persisted  bool                                     `json:"persisted"`
	Categories map[string]map[domain.SiteKey]SiteStatus `json:"categories"`
	Changes    []SiteChange                             `json:"-"`
}

// Down counts distinct sites whose probe in this cycle was not a 200.
func (c *Cycle) Down() int {
	seen := make(map[domain.SiteKey]struct{})
	for _, sites := range c.Categories {
		for url, st := range sites {
			if !st.Probe.Up() {
				seen[url] = struct{}{}
			}
		}
	}
	return len(seen)
}

// Sites counts the distinct sites in the cycle.
func (c *Cycle) Sites() int {
	seen := make(map[domain.SiteKey]struct{})
	for _, sites := range c.Categories {
		for url := range sites {
			seen[url] = struct{}{}
		}
	}
	return len(seen)
}

// Observer is notified after every cycle, once the engine lock is released.
// Implementations must return quickly.
type Observer interface {
	ObserveCycle(c *Cycle)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(c *Cycle)

func (f ObserverFunc) ObserveCycle(c *Cycle) { f(c) }
