package probe

import (
	"context"
	"net/url"
	"strings"

	"github.com/hamed0406/sitestatus/internal/domain"
)

// Prober performs a single check against a URL.
//
// Implementations never return an error: any network-level failure is
// reported as StatusCode 0 so the caller can record it as a down check.
type Prober interface {
	Probe(ctx context.Context, target string) domain.ProbeResult
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, target string) domain.ProbeResult

func (f ProberFunc) Probe(ctx context.Context, target string) domain.ProbeResult {
	return f(ctx, target)
}

// ValidTarget reports whether raw is an absolute http(s) URL with a host.
func ValidTarget(raw string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// HostOf pulls the hostname from a URL string.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
