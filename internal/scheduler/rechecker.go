package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/domain"
	"github.com/hamed0406/sitestatus/internal/monitor"
)

// Refresher runs one cycle, collapsing concurrent requests.
type Refresher interface {
	Refresh(ctx context.Context, catalog domain.Catalog) (*monitor.Cycle, bool)
}

// Rechecker triggers a cycle over the catalog on a cron schedule.
type Rechecker struct {
	Logger   *zap.Logger
	Engine   Refresher
	Catalog  domain.Catalog
	Schedule string

	cron *cron.Cron
}

// ScheduleFor turns the config into a cron expression. An explicit schedule wins;
// otherwise the refresh interval becomes "@every". Empty means disabled.
func ScheduleFor(schedule string, interval time.Duration) string {
	if schedule != "" {
		return schedule
	}
	if interval <= 0 {
		return ""
	}
	return fmt.Sprintf("@every %s", interval)
}

func NewRechecker(
	logger *zap.Logger,
	engine Refresher,
	catalog domain.Catalog,
	schedule string,
	loc *time.Location,
) (*Rechecker, error) {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger.Sugar()}
	r := &Rechecker{
		Logger:   logger,
		Engine:   engine,
		Catalog:  catalog,
		Schedule: schedule,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if schedule == "" {
		return r, nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Run does an immediate pass, then runs on schedule until ctx is cancelled.
func (r *Rechecker) Run(ctx context.Context) error {
	if r.Schedule == "" {
		r.Logger.Info("rechecker_disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(r.Schedule, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", r.Schedule, err)
	}

	r.RunOnce(ctx)
	r.cron.Start()
	r.Logger.Info("rechecker_started", zap.String("schedule", r.Schedule))

	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	r.Logger.Info("rechecker_stopped")
	return nil
}

func (r *Rechecker) RunOnce(ctx context.Context) *monitor.Cycle {
	if ctx.Err() != nil {
		return nil
	}
	c, shared := r.Engine.Refresh(ctx, r.Catalog)
	r.Logger.Debug("rechecker_cycle",
		zap.String("cycle_id", c.ID),
		zap.Bool("shared", shared),
	)
	return c
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}
