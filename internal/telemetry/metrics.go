// Package telemetry exports cycle results as Prometheus metrics.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Up           *prometheus.GaugeVec
	ResponseTime *prometheus.GaugeVec
	StatusCode   *prometheus.GaugeVec
	Uptime       *prometheus.GaugeVec
	Checks       *prometheus.CounterVec
	Cycles       prometheus.Counter
	CycleSeconds prometheus.Histogram
	SaveFailures prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitestatus",
			Name:      "site_up",
			Help:      "Whether the last check of a site returned 200 (1) or not (0).",
		}, []string{"category", "url"}),
		ResponseTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitestatus",
			Name:      "site_response_seconds",
			Help:      "Latency of the last check of a site.",
		}, []string{"category", "url"}),
		StatusCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitestatus",
			Name:      "site_status_code",
			Help:      "HTTP status of the last check, 0 when unreachable.",
		}, []string{"category", "url"}),
		Uptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitestatus",
			Name:      "site_uptime_percent",
			Help:      "Share of successful checks in the retained history.",
		}, []string{"category", "url"}),
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitestatus",
			Name:      "checks_total",
			Help:      "Checks performed, by result class.",
		}, []string{"class"}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitestatus",
			Name:      "cycles_total",
			Help:      "Completed check cycles.",
		}),
		CycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sitestatus",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a check cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		SaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitestatus",
			Name:      "history_save_failures_total",
			Help:      "Cycles whose history could not be persisted.",
		}),
	}
	reg.MustRegister(m.Up, m.ResponseTime, m.StatusCode, m.Uptime, m.Checks, m.Cycles, m.CycleSeconds, m.SaveFailures)
	return m
}
