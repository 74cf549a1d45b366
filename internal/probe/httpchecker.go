package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/hamed0406/sitestatus/internal/domain"
)

// MaxRedirects is the number of redirect hops followed before the last
// response is used as the result.
const MaxRedirects = 5

const userAgent = "sitestatus/1.0 (+uptime probe)"

// HTTPProber checks a URL with a HEAD request. Certificate verification is
// disabled, so sites with self-signed or broken certificates still report a status code.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
	// FallbackGET retries with GET when a server rejects HEAD with 405.
	FallbackGET bool
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProber{
		Timeout: timeout,
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
				MaxIdleConns:        32,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: timeout,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > MaxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (h *HTTPProber) Probe(ctx context.Context, target string) domain.ProbeResult {
	if !ValidTarget(target) {
		return domain.ProbeResult{Reason: "invalid_url"}
	}
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	start := time.Now()
	code, err := h.do(ctx, http.MethodHead, target)
	if err == nil && code == http.StatusMethodNotAllowed && h.FallbackGET {
		code, err = h.do(ctx, http.MethodGet, target)
	}
	latency := roundMS(time.Since(start))
	if err != nil {
		return domain.ProbeResult{LatencyMS: latency, Reason: classify(err)}
	}
	return domain.ProbeResult{StatusCode: code, LatencyMS: latency}
}

func (h *HTTPProber) do(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := h.Client.Do(req)
	if err != nil {
		return 0, err
	}
	// body is never read; the status line is all we need
	resp.Body.Close()
	return resp.StatusCode, nil
}

func roundMS(d time.Duration) int64 {
	return d.Round(time.Millisecond).Milliseconds()
}

// classify maps a transport error to a short reason used in logs.
func classify(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	var recErr tls.RecordHeaderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection_refused"
	case errors.As(err, &recErr):
		return "tls"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "http_error"
	}
}
