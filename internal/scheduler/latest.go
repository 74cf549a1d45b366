package scheduler

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hamed0406/sitestatus/internal/monitor"
)

const latestKey = "latest_cycle"

// Latest remembers the most recent cycle so reads can be served without probing.
// It subscribes to the engine, so scheduled and on-demand cycles both land here.
type Latest struct {
	c *cache.Cache
}

// NewLatest keeps a cycle for ttl; ttl <= 0 keeps it until replaced.
func NewLatest(ttl time.Duration) *Latest {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Latest{c: cache.New(ttl, time.Minute)}
}

func (l *Latest) ObserveCycle(c *monitor.Cycle) {
	l.c.SetDefault(latestKey, c)
}

// Get returns the cached cycle, if any and not yet expired.
func (l *Latest) Get() (*monitor.Cycle, bool) {
	v, ok := l.c.Get(latestKey)
	if !ok {
		return nil, false
	}
	return v.(*monitor.Cycle), true
}
