package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/sitestatus/internal/app"
	"github.com/hamed0406/sitestatus/internal/config"
	"github.com/hamed0406/sitestatus/internal/httpapi"
	apimw "github.com/hamed0406/sitestatus/internal/httpapi/middleware"
	"github.com/hamed0406/sitestatus/internal/logging"
	"github.com/hamed0406/sitestatus/internal/notify"
	"github.com/hamed0406/sitestatus/internal/scheduler"
	"github.com/hamed0406/sitestatus/internal/telemetry"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before the config")
	pflag.Parse()

	// a missing .env is fine
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("api_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, closeStore, err := app.NewEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	catalog := cfg.Catalog()
	schedule := scheduler.ScheduleFor(cfg.Schedule, cfg.RefreshInterval())

	// Without a schedule the cache is what spaces out cycles triggered by reads.
	ttl := cfg.RefreshInterval()
	if schedule != "" {
		ttl *= 3
	}
	latest := scheduler.NewLatest(ttl)
	eng.Subscribe(latest)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng.Subscribe(telemetry.New(reg))

	srv := httpapi.NewServer(logger, eng, latest, catalog, httpapi.Settings{
		RefreshIntervalMS: cfg.RefreshIntervalMS,
		HistoryLimit:      cfg.HistoryLimit,
		ReadThrough:       cfg.ReadThrough,
		Location:          loc,
	})
	srv.Hub = httpapi.NewHub(logger, cfg.API.AllowedOrigins, latest.Get)
	srv.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	eng.Subscribe(srv.Hub)

	rc, err := scheduler.NewRechecker(logger, eng, catalog, schedule, loc)
	if err != nil {
		return err
	}

	keys := apimw.Keys{Public: cfg.API.PublicKeys, Admin: cfg.API.AdminKeys}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(keys, cfg.API.AllowedOrigins, cfg.API.PublicRPM, cfg.API.PublicBurst, cfg.API.AdminRPM, cfg.API.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if notifiers := notify.Build(cfg.Notify.SlackWebhook); len(notifiers) > 0 {
		al := scheduler.NewAlerter(logger, notifiers, scheduler.AlerterConfig{
			AlertOnRecovery: cfg.Notify.AlertOnRecovery,
			Cooldown:        cfg.Notify.Cooldown,
		}, nil)
		eng.Subscribe(al)
		g.Go(func() error {
			if err := al.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info("alerts_disabled")
	}

	g.Go(func() error { return rc.Run(gctx) })

	g.Go(func() error {
		logger.Info("api_listen",
			zap.String("addr", cfg.Addr),
			zap.Int("sites", len(catalog.Sites())),
			zap.String("store", cfg.Store.Driver),
			zap.String("schedule", schedule),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("api_shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
