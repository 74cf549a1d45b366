// cmd/preflight/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/config"
	"github.com/hamed0406/sitestatus/internal/probe"
	"github.com/hamed0406/sitestatus/internal/repo"
	"github.com/hamed0406/sitestatus/internal/repo/backend"
	"github.com/hamed0406/sitestatus/internal/scheduler"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()
	_ = godotenv.Load()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err.Error())
	}
	ok("config valid, addr=" + cfg.Addr)

	if len(cfg.API.AdminKeys) == 0 {
		fail("api.admin_keys (ADMIN_API_KEYS) is empty (anyone could trigger refresh).")
	}
	if len(cfg.API.PublicKeys) == 0 {
		warn("api.public_keys (PUBLIC_API_KEYS) is empty; only admin keys can read.")
	}
	for _, k := range append(append([]string{}, cfg.API.AdminKeys...), cfg.API.PublicKeys...) {
		if strings.ContainsAny(k, " \t") {
			warn("an API key contains whitespace; use comma-separated with no spaces, e.g. key1,key2")
			break
		}
	}

	catalog := cfg.Catalog()
	sites := catalog.Sites()
	if len(sites) == 0 {
		fail("no sites configured")
	}
	for _, s := range sites {
		if !probe.ValidTarget(s) {
			warn(fmt.Sprintf("%q is not an absolute http(s) URL; it will always report status 0", s))
		}
	}
	ok(fmt.Sprintf("%d sites in %d categories", len(sites), len(catalog)))

	loc, err := cfg.Location()
	if err != nil {
		fail(err.Error())
	}
	schedule := scheduler.ScheduleFor(cfg.Schedule, cfg.RefreshInterval())
	if _, err := scheduler.NewRechecker(zap.NewNop(), nil, catalog, schedule, loc); err != nil {
		fail(err.Error())
	}
	if schedule == "" {
		warn("no schedule; cycles only run on read or refresh")
	} else {
		ok("schedule " + schedule + " (" + loc.String() + ")")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, closeStore, err := backend.Open(ctx, cfg.Store, zap.NewNop())
	if err != nil {
		fail(err.Error())
	}
	doc, err := store.Load(ctx)
	if cerr := closeStore(); cerr != nil {
		warn("closing store: " + cerr.Error())
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		warn("store " + cfg.Store.Driver + " has no history yet; it is created on the first cycle")
	case errors.Is(err, repo.ErrCorrupt):
		warn("store " + cfg.Store.Driver + " is corrupt (" + err.Error() + "); history would restart empty")
	case err != nil:
		fail("store " + cfg.Store.Driver + " is unreachable: " + err.Error())
	default:
		ok(fmt.Sprintf("store %s holds %d sites", cfg.Store.Driver, len(doc.Sites)))
	}

	if cfg.Notify.SlackWebhook == "" {
		warn("notify.slack_webhook empty; down alerts are disabled")
	} else {
		ok("slack alerts enabled")
	}

	if len(cfg.API.AllowedOrigins) == 0 {
		warn("api.allowed_origins empty; browsers will be blocked by CORS for cross-origin requests.")
	} else {
		ok("allowed_origins=" + strings.Join(cfg.API.AllowedOrigins, ","))
	}

	ok("preflight passed")
}
