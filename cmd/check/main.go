// Command check runs one check cycle (or checks the given URLs) and prints
// the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/app"
	"github.com/hamed0406/sitestatus/internal/config"
	"github.com/hamed0406/sitestatus/internal/logging"
	"github.com/hamed0406/sitestatus/internal/monitor"
)

func main() {
	os.Exit(realMain())
}

// realMain returns the exit code so deferred cleanup runs before os.Exit.
func realMain() int {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	urls := pflag.StringSliceP("url", "u", nil, "check only these URLs (repeatable)")
	failOnDown := pflag.Bool("fail-on-down", false, "exit 2 when any site is not up")
	pflag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Print(err)
		return 1
	}
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel})
	if err != nil {
		log.Print(err)
		return 1
	}
	defer logger.Sync()

	code, err := run(cfg, logger, *urls, *failOnDown)
	if err != nil {
		logger.Error("check_failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "check:", err)
	}
	return code
}

func run(cfg *config.Config, logger *zap.Logger, urls []string, failOnDown bool) (int, error) {
	ctx := context.Background()
	eng, closeStore, err := app.NewEngine(ctx, cfg, logger)
	if err != nil {
		return 1, err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("store_close_failed", zap.Error(err))
		}
	}()

	var (
		out  any
		down int
	)
	if len(urls) > 0 {
		sites := make(map[string]monitor.SiteStatus, len(urls))
		for _, u := range urls {
			st, err := eng.CheckSite(ctx, u)
			if err != nil {
				fmt.Fprintln(os.Stderr, "warning: result not persisted:", err)
			}
			if !st.Probe.Up() {
				down++
			}
			sites[u] = st
		}
		out = sites
	} else {
		c := eng.RunCycle(ctx, cfg.Catalog())
		if !c.Persisted {
			fmt.Fprintln(os.Stderr, "warning: history not persisted")
		}
		down = c.Down()
		out = c.Categories
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 1, err
	}
	if failOnDown && down > 0 {
		return 2, nil
	}
	return 0, nil
}
