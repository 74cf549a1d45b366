// Package availability derives display metrics from a site's history.
// Every function is pure; "now" is always passed in.
package availability

import (
	"fmt"
	"math"
	"time"

	"github.com/hamed0406/sitestatus/internal/domain"
)

// Uptime returns the share of 200 checks in history as a percentage rounded
// to two decimals. An empty history counts as fully up.
func Uptime(history []domain.HistoryEntry) float64 {
	if len(history) == 0 {
		return 100
	}
	var up int
	for _, e := range history {
		if e.Up() {
			up++
		}
	}
	return math.Round(100*float64(up)/float64(len(history))*100) / 100
}

// MonthlyDowntimes returns the failed checks whose timestamp falls in the
// given calendar month of loc, in history order.
func MonthlyDowntimes(history []domain.HistoryEntry, year int, month time.Month, loc *time.Location) []domain.HistoryEntry {
	if loc == nil {
		loc = time.Local
	}
	out := []domain.HistoryEntry{}
	for _, e := range history {
		if e.Up() {
			continue
		}
		y, m, _ := time.Unix(e.Timestamp, 0).In(loc).Date()
		if y == year && m == month {
			out = append(out, e)
		}
	}
	return out
}

// CurrentMonthDowntimes is MonthlyDowntimes for the month containing now.
func CurrentMonthDowntimes(history []domain.HistoryEntry, now time.Time) []domain.HistoryEntry {
	y, m, _ := now.Date()
	return MonthlyDowntimes(history, y, m, now.Location())
}

// FormatDuration renders seconds using the single largest unit that fits,
// e.g. "45 seconds", "1 minute", "3 days". Zero or negative input renders as "".
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24
	switch {
	case days > 0:
		return plural(days, "day")
	case hours > 0:
		return plural(hours, "hour")
	case minutes > 0:
		return plural(minutes, "minute")
	default:
		return plural(seconds, "second")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// LastClass classifies the latest retained check, or ClassUnknown without one.
func LastClass(history []domain.HistoryEntry) Class {
	if len(history) == 0 {
		return ClassUnknown
	}
	return Classify(history[len(history)-1].StatusCode)
}

// DownFor is how long the site has been down, or "" when it is up.
func DownFor(rec domain.SiteRecord, now time.Time) string {
	if rec.DownSince == nil {
		return ""
	}
	return FormatDuration(now.Unix() - *rec.DownSince)
}

// Class buckets a status code the way the status page colours it.
type Class string

const (
	ClassUp       Class = "up"
	ClassDegraded Class = "degraded"
	ClassDown     Class = "down"
	ClassUnknown  Class = "unknown"
)

// Classify maps 200 to up, unreachable or 5xx to down, anything else to degraded.
func Classify(status int) Class {
	switch {
	case status == domain.StatusUp:
		return ClassUp
	case status == 0 || status >= 500:
		return ClassDown
	default:
		return ClassDegraded
	}
}
