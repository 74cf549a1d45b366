package telemetry

import (
	"github.com/hamed0406/sitestatus/internal/availability"
	"github.com/hamed0406/sitestatus/internal/monitor"
)

// ObserveCycle records the cycle. Checks are counted once per distinct site.
func (m *Metrics) ObserveCycle(c *monitor.Cycle) {
	m.Cycles.Inc()
	m.CycleSeconds.Observe(c.FinishedAt.Sub(c.StartedAt).Seconds())
	if !c.Persisted {
		m.SaveFailures.Inc()
	}

	counted := make(map[string]struct{})
	for category, sites := range c.Categories {
		for url, st := range sites {
			up := 0.0
			if st.Probe.Up() {
				up = 1
			}
			m.Up.WithLabelValues(category, url).Set(up)
			m.ResponseTime.WithLabelValues(category, url).Set(float64(st.Probe.LatencyMS) / 1000)
			m.StatusCode.WithLabelValues(category, url).Set(float64(st.Probe.StatusCode))
			m.Uptime.WithLabelValues(category, url).Set(st.Uptime)

			if _, ok := counted[url]; ok {
				continue
			}
			counted[url] = struct{}{}
			m.Checks.WithLabelValues(string(availability.Classify(st.Probe.StatusCode))).Inc()
		}
	}
}

var _ monitor.Observer = (*Metrics)(nil)
