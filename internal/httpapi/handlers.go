package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/availability"
	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/monitor"
)

// handleStatus answers with {category: {url: {status, history, uptime}}}.
// Unless read-through is on, a cached cycle is served and a cycle only runs
// when nothing is cached yet.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var c *monitor.Cycle
	if !s.Settings.ReadThrough && s.Latest != nil {
		c, _ = s.Latest.Get()
	}
	if c == nil {
		c, _ = s.Engine.Refresh(r.Context(), s.Catalog)
	}
	s.writeCycle(w, c)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, shared := s.Engine.Refresh(r.Context(), s.Catalog)
	s.Logger.Info("refresh_requested",
		zap.String("cycle_id", c.ID),
		zap.Bool("shared", shared),
		zap.String("remote", r.RemoteAddr),
	)
	s.writeCycle(w, c)
}

func (s *Server) writeCycle(w http.ResponseWriter, c *monitor.Cycle) {
	w.Header().Set("X-Cycle-ID", c.ID)
	w.Header().Set("Last-Modified", c.FinishedAt.UTC().Format(http.TimeFormat))
	if !c.Persisted {
		w.Header().Set("Warning", `199 - "history not persisted"`)
	}
	writeJSON(w, http.StatusOK, c.Categories)
}

type configResponse struct {
	RefreshIntervalMS int            `json:"refresh_interval_ms"`
	HistoryLimit      int            `json:"history_limit"`
	Categories        []string       `json:"categories"`
	Sites             domain.Catalog `json:"sites"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cats := s.Catalog.Categories()
	writeJSON(w, http.StatusOK, configResponse{
		RefreshIntervalMS: s.Settings.RefreshIntervalMS,
		HistoryLimit:      s.Settings.HistoryLimit,
		Categories:        cats,
		Sites:             s.Catalog,
	})
}

type recordResponse struct {
	URL     string             `json:"url"`
	History domain.SiteRecord  `json:"history"`
	Uptime  float64            `json:"uptime"`
	Class   availability.Class `json:"class"`
	DownFor string             `json:"down_for,omitempty"`
}

// handleSiteRecord returns the stored record of one site without probing.
func (s *Server) handleSiteRecord(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	rec, ok := s.lookup(w, r, url)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{
		URL:     url,
		History: rec,
		Uptime:  availability.Uptime(rec.History),
		Class:   availability.LastClass(rec.History),
		DownFor: availability.DownFor(rec, s.Clock.Now()),
	})
}

type downtime struct {
	Timestamp  int64              `json:"timestamp"`
	StatusCode int                `json:"status"`
	LatencyMS  int64              `json:"response_time"`
	Time       string             `json:"time"`
	Class      availability.Class `json:"class"`
}

type downtimesResponse struct {
	URL       string     `json:"url"`
	Year      int        `json:"year"`
	Month     int        `json:"month"`
	Count     int        `json:"count"`
	Downtimes []downtime `json:"downtimes"`
}

// handleDowntimes lists the failed checks of one site in a calendar month,
// the current one unless year and month are given.
func (s *Server) handleDowntimes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	url := q.Get("url")
	now := s.Clock.Now().In(s.Settings.Location)
	year, month := now.Year(), int(now.Month())
	current := q.Get("year") == "" && q.Get("month") == ""

	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1970 || n > 9999 {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = n
	}
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
		month = n
	}

	rec, ok := s.lookup(w, r, url)
	if !ok {
		return
	}
	var entries []domain.HistoryEntry
	if current {
		entries = availability.CurrentMonthDowntimes(rec.History, now)
	} else {
		entries = availability.MonthlyDowntimes(rec.History, year, time.Month(month), s.Settings.Location)
	}
	out := downtimesResponse{URL: url, Year: year, Month: month, Count: len(entries), Downtimes: make([]downtime, 0, len(entries))}
	for _, e := range entries {
		out.Downtimes = append(out.Downtimes, downtime{
			Timestamp:  e.Timestamp,
			StatusCode: e.StatusCode,
			LatencyMS:  e.LatencyMS,
			Time:       time.Unix(e.Timestamp, 0).In(s.Settings.Location).Format(time.RFC3339),
			Class:      availability.Classify(e.StatusCode),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// lookup resolves a configured site to its stored record. A configured site
// that was never checked yields an empty record.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, url string) (domain.SiteRecord, bool) {
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return domain.SiteRecord{}, false
	}
	doc := s.Engine.Snapshot(r.Context())
	rec, stored := doc.Sites[url]
	if !stored && !s.Catalog.Contains(url) {
		writeError(w, http.StatusNotFound, "unknown site")
		return domain.SiteRecord{}, false
	}
	return rec.Clone(), true
}
