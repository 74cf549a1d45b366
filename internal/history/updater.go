// Package history merges probe results into the bounded per-site history
// and keeps the up/down bookkeeping of each site record.
package history

import (
	"github.com/hamed0406/sitestatus/internal/clock"
	"github.com/hamed0406/sitestatus/internal/domain"
)

// DefaultLimit is the number of entries kept per site when none is configured.
const DefaultLimit = 100

// Transition describes how a check changed the site's up/down state.
type Transition int

const (
	NoChange Transition = iota
	// WentDown marks the first failing check after an up state (or a first check that failed).
	WentDown
	// Recovered marks the first 200 after a down streak.
	Recovered
)

func (t Transition) String() string {
	switch t {
	case WentDown:
		return "went_down"
	case Recovered:
		return "recovered"
	default:
		return "no_change"
	}
}

// Updater applies probe results to a Document. It is not safe for
// concurrent use on the same document; callers serialize access.
type Updater struct {
	Limit int
	Clock clock.Clock
}

func NewUpdater(limit int, c clock.Clock) *Updater {
	if limit < 1 {
		limit = DefaultLimit
	}
	if c == nil {
		c = clock.Real
	}
	return &Updater{Limit: limit, Clock: c}
}

// Apply merges res into doc for key, creating the record on first sight,
// and returns a copy of the updated record with the state transition.
// doc.LastUpdate is set to the check time. Persisting doc is up to the caller.
func (u *Updater) Apply(doc *domain.Document, key domain.SiteKey, res domain.ProbeResult) (domain.SiteRecord, Transition) {
	if doc.Sites == nil {
		doc.Sites = make(map[domain.SiteKey]*domain.SiteRecord)
	}
	rec, ok := doc.Sites[key]
	if !ok || rec == nil {
		rec = domain.NewSiteRecord()
		doc.Sites[key] = rec
	}

	now := u.Clock.Now().Unix()
	tr := NoChange
	if res.StatusCode == domain.StatusUp {
		rec.LastUp = domain.TS(now)
		if rec.DownSince != nil {
			rec.DownSince = nil
			tr = Recovered
		}
	} else {
		rec.LastDown = domain.TS(now)
		if rec.DownSince == nil {
			rec.DownSince = domain.TS(now)
			tr = WentDown
		}
	}

	rec.History = append(rec.History, domain.HistoryEntry{
		Timestamp:  now,
		StatusCode: res.StatusCode,
		LatencyMS:  res.LatencyMS,
	})
	rec.History = Trim(rec.History, u.limit())

	doc.LastUpdate = now
	return rec.Clone(), tr
}

func (u *Updater) limit() int {
	if u.Limit < 1 {
		return DefaultLimit
	}
	return u.Limit
}

// Trim drops the oldest entries until at most limit remain.
func Trim(h []domain.HistoryEntry, limit int) []domain.HistoryEntry {
	if limit < 1 || len(h) <= limit {
		return h
	}
	over := len(h) - limit
	out := make([]domain.HistoryEntry, limit)
	copy(out, h[over:])
	return out
}
