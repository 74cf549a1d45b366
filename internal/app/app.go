// Package app assembles the engine from configuration for the commands.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/clock"
	"github.com/hamed0406/sitestatus/internal/config"
	"github.com/hamed0406/sitestatus/internal/history"
	"github.com/hamed0406/sitestatus/internal/monitor"
	"github.com/hamed0406/sitestatus/internal/probe"
	"github.com/hamed0406/sitestatus/internal/repo/backend"
)

// NewProber builds the HTTP prober with the configured retries.
func NewProber(cfg *config.Config) probe.Prober {
	hp := probe.NewHTTPProber(cfg.Timeout())
	hp.FallbackGET = cfg.HeadFallbackGET
	return probe.Wrap(hp, cfg.RetryAttempts, cfg.RetryBackoff())
}

// NewEngine opens the configured store and returns an engine over it.
// The returned func closes the store.
func NewEngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*monitor.Engine, func() error, error) {
	store, closeStore, err := backend.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, nil, err
	}
	eng := monitor.New(
		log,
		NewProber(cfg),
		store,
		history.NewUpdater(cfg.HistoryLimit, clock.Real),
		monitor.Options{
			Timeout:        ProbeBudget(cfg),
			Concurrency:    cfg.MaxConcurrentChecks,
			DNSDiagnostics: cfg.DNSDiagnostics,
		},
	)
	return eng, closeStore, nil
}

// ProbeBudget is the deadline for one site: every attempt's timeout plus the
// backoff between attempts. Without retries it is just timeout_seconds.
func ProbeBudget(cfg *config.Config) time.Duration {
	attempts := max(cfg.RetryAttempts, 1)
	return time.Duration(attempts)*cfg.Timeout() + time.Duration(attempts-1)*cfg.RetryBackoff()
}
