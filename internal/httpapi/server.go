package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/clock"
	"github.com/hamed0406/sitestatus/internal/domain"
	apimw "github.com/hamed0406/sitestatus/internal/httpapi/middleware"
	"github.com/hamed0406/sitestatus/internal/monitor"
)

// Engine is the part of monitor.Engine the API needs.
type Engine interface {
	Refresh(ctx context.Context, catalog domain.Catalog) (*monitor.Cycle, bool)
	Snapshot(ctx context.Context) *domain.Document
}

// LatestSource serves the most recent cycle without probing.
type LatestSource interface {
	Get() (*monitor.Cycle, bool)
}

// Settings are the values the status page needs besides the data itself.
type Settings struct {
	RefreshIntervalMS int
	HistoryLimit      int
	// ReadThrough makes every status read run a fresh cycle.
	ReadThrough bool
	Location    *time.Location
}

type Server struct {
	Logger   *zap.Logger
	Engine   Engine
	Latest   LatestSource
	Catalog  domain.Catalog
	Settings Settings
	Clock    clock.Clock
	Hub      *Hub
	Metrics  http.Handler
}

func NewServer(l *zap.Logger, e Engine, latest LatestSource, catalog domain.Catalog, st Settings) *Server {
	if st.Location == nil {
		st.Location = time.Local
	}
	return &Server{
		Logger:   l,
		Engine:   e,
		Latest:   latest,
		Catalog:  catalog,
		Settings: st,
		Clock:    clock.Real,
	}
}

// Router wires the routes. Reads need any key, refresh needs an admin key;
// with no keys configured everything is open.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, publicRPM, publicBurst, adminRPM, adminBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(corsOptions(allowedOrigins)))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAny(keys))
		r.Use(apimw.RateLimit(publicRPM, publicBurst))

		r.Get("/api/status", s.handleStatus)
		r.Get("/api/config", s.handleConfig)
		r.Get("/api/sites/record", s.handleSiteRecord)
		r.Get("/api/sites/downtimes", s.handleDowntimes)
		if s.Hub != nil {
			r.Method(http.MethodGet, "/ws", s.Hub)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAdmin(keys))
		r.Use(apimw.RateLimit(adminRPM, adminBurst))

		r.Post("/api/refresh", s.handleRefresh)
	})

	return r
}

func corsOptions(allowed []string) cors.Options {
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"X-Cycle-ID"},
		MaxAge:         300,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
