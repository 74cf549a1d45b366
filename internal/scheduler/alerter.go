package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitestatus/internal/availability"
	"github.com/hamed0406/sitestatus/internal/clock"
	"github.com/hamed0406/sitestatus/internal/history"
	"github.com/hamed0406/sitestatus/internal/monitor"
	"github.com/hamed0406/sitestatus/internal/notify"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
}

// Alerter turns up/down transitions of each cycle into notifications.
// ObserveCycle only queues; Run does the sending.
type Alerter struct {
	log      *zap.Logger
	notifier notify.Notifier
	cfg      AlerterConfig
	clock    clock.Clock

	queue chan *monitor.Cycle

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewAlerter(log *zap.Logger, notifier notify.Notifier, cfg AlerterConfig, c clock.Clock) *Alerter {
	if c == nil {
		c = clock.Real
	}
	return &Alerter{
		log:      log,
		notifier: notifier,
		cfg:      cfg,
		clock:    c,
		queue:    make(chan *monitor.Cycle, 16),
		lastSent: make(map[string]time.Time),
	}
}

func (a *Alerter) ObserveCycle(c *monitor.Cycle) {
	if len(c.Changes) == 0 {
		return
	}
	select {
	case a.queue <- c:
	default:
		a.log.Warn("alert_queue_full", zap.String("cycle_id", c.ID))
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-a.queue:
			a.handle(ctx, c)
		}
	}
}

func (a *Alerter) handle(ctx context.Context, c *monitor.Cycle) {
	for _, ch := range c.Changes {
		alert, ok := a.decide(ch)
		if !ok {
			continue
		}
		alert.Text = a.text(ch)
		if err := a.notifier.Send(ctx, alert); err != nil {
			a.log.Warn("alert_send_failed",
				zap.String("url", ch.URL),
				zap.String("transition", ch.Transition.String()),
				zap.Error(err),
			)
			continue
		}
		a.log.Info("alert_sent",
			zap.String("cycle_id", c.ID),
			zap.String("url", ch.URL),
			zap.String("transition", ch.Transition.String()),
		)
	}
}

// decide applies the cooldown to down alerts; recoveries bypass it when enabled.
func (a *Alerter) decide(ch monitor.SiteChange) (notify.Alert, bool) {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ch.Transition {
	case history.WentDown:
		if last, ok := a.lastSent[ch.URL]; ok && now.Sub(last) < a.cfg.Cooldown {
			return notify.Alert{}, false
		}
		a.lastSent[ch.URL] = now
		return notify.Alert{Kind: notify.KindDown, URL: ch.URL, Title: "🔴 Site DOWN", At: now}, true
	case history.Recovered:
		if !a.cfg.AlertOnRecovery {
			return notify.Alert{}, false
		}
		return notify.Alert{Kind: notify.KindRecovered, URL: ch.URL, Title: "🟢 Site RECOVERED", At: now}, true
	}
	return notify.Alert{}, false
}

func (a *Alerter) text(ch monitor.SiteChange) string {
	status := "unreachable"
	if ch.Probe.StatusCode != 0 {
		status = fmt.Sprintf("%d", ch.Probe.StatusCode)
	}
	reason := ch.Probe.Reason
	if reason == "" {
		reason = string(availability.Classify(ch.Probe.StatusCode))
	}
	return fmt.Sprintf(
		"URL: %s\nHTTP: %s\nLatency: %d ms\nReason: %s\nUptime: %.2f%%\nChecked: %s",
		ch.URL, status, ch.Probe.LatencyMS, reason,
		availability.Uptime(ch.Record.History), a.clock.Now().Format(time.RFC3339),
	)
}
