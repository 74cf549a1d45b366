package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// SiteKey is the exact URL string that identifies a monitored site.
// No normalization: "https://a.example" and "https://a.example/" are distinct.
type SiteKey = string

// ProbeResult is the outcome of one network check.
// StatusCode is 0 when the site could not be reached at all.
type ProbeResult struct {
	StatusCode int    `json:"status"`
	LatencyMS  int64  `json:"time"`
	Reason     string `json:"reason,omitempty"`
}

func (p ProbeResult) Up() bool { return p.StatusCode == StatusUp }

// StatusUp is the only status code counted as a successful check.
const StatusUp = 200

// HistoryEntry is one retained check. Entries are never modified after append.
type HistoryEntry struct {
	Timestamp  int64 `json:"timestamp"`
	StatusCode int   `json:"status"`
	LatencyMS  int64 `json:"response_time"`
}

func (e HistoryEntry) Up() bool { return e.StatusCode == StatusUp }

// UnmarshalJSON accepts whole-valued floats (123.0) as well as integers;
// files written by the PHP page store rounded latencies as floats.
func (e *HistoryEntry) UnmarshalJSON(b []byte) error {
	var raw struct {
		Timestamp  json.Number `json:"timestamp"`
		StatusCode json.Number `json:"status"`
		LatencyMS  json.Number `json:"response_time"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := roundNumber(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	status, err := roundNumber(raw.StatusCode)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	latency, err := roundNumber(raw.LatencyMS)
	if err != nil {
		return fmt.Errorf("response_time: %w", err)
	}
	*e = HistoryEntry{Timestamp: ts, StatusCode: int(status), LatencyMS: latency}
	return nil
}

func roundNumber(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

// SiteRecord is the rolling state kept per site.
type SiteRecord struct {
	History   []HistoryEntry `json:"history"`
	LastUp    *int64         `json:"last_up"`
	LastDown  *int64         `json:"last_down"`
	DownSince *int64         `json:"down_since"`
}

// NewSiteRecord returns the record a never-seen site starts with.
func NewSiteRecord() *SiteRecord {
	return &SiteRecord{History: make([]HistoryEntry, 0, 8)}
}

// Clone returns a deep copy so callers can hold on to it after the document moves on.
func (r *SiteRecord) Clone() SiteRecord {
	if r == nil {
		return SiteRecord{History: []HistoryEntry{}}
	}
	out := SiteRecord{
		History:   make([]HistoryEntry, len(r.History)),
		LastUp:    cloneTS(r.LastUp),
		LastDown:  cloneTS(r.LastDown),
		DownSince: cloneTS(r.DownSince),
	}
	copy(out.History, r.History)
	return out
}

// Down reports whether the latest check failed.
func (r *SiteRecord) Down() bool { return r != nil && r.DownSince != nil }

func cloneTS(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// TS is a helper for building nullable timestamps.
func TS(v int64) *int64 { return &v }

// Document is the single unit of persistence: every site's record plus the
// time of the last write.
type Document struct {
	LastUpdate int64                   `json:"last_update"`
	Sites      map[SiteKey]*SiteRecord `json:"sites"`
}

func NewDocument() *Document {
	return &Document{Sites: make(map[SiteKey]*SiteRecord)}
}

// Clone deep-copies the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return NewDocument()
	}
	out := &Document{LastUpdate: d.LastUpdate, Sites: make(map[SiteKey]*SiteRecord, len(d.Sites))}
	for k, rec := range d.Sites {
		cp := rec.Clone()
		out.Sites[k] = &cp
	}
	return out
}

// Normalize fills in nil maps and slices left by a sparse or hand-edited file.
func (d *Document) Normalize() *Document {
	if d == nil {
		return NewDocument()
	}
	if d.Sites == nil {
		d.Sites = make(map[SiteKey]*SiteRecord)
	}
	for k, rec := range d.Sites {
		if rec == nil {
			d.Sites[k] = NewSiteRecord()
			continue
		}
		if rec.History == nil {
			rec.History = []HistoryEntry{}
		}
	}
	return d
}

// Catalog groups monitored URLs by a presentational category label.
type Catalog map[string][]SiteKey

// Categories returns the category names in a stable order.
func (c Catalog) Categories() []string {
	out := make([]string, 0, len(c))
	for name := range c {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Sites returns every distinct URL in category order, first occurrence wins.
func (c Catalog) Sites() []SiteKey {
	seen := make(map[SiteKey]struct{})
	var out []SiteKey
	for _, name := range c.Categories() {
		for _, site := range c[name] {
			if _, ok := seen[site]; ok {
				continue
			}
			seen[site] = struct{}{}
			out = append(out, site)
		}
	}
	return out
}

// Contains reports whether the site appears in any category.
func (c Catalog) Contains(site SiteKey) bool {
	for _, sites := range c {
		for _, s := range sites {
			if s == site {
				return true
			}
		}
	}
	return false
}
