package upstream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"syscall"
	"time"

	"github.com/fundamentos/dashboard-edge/internal/circuitbreaker"
)

// Upstream forwards requests to the single API origin and keeps the
// figures reported on the admin endpoint.
type Upstream struct {
	url              *url.URL
	proxy            *httputil.ReverseProxy
	breaker          *circuitbreaker.CircuitBreaker
	logger           *slog.Logger
	forwardedHeaders bool

	mutex            sync.Mutex
	isHealthy        bool
	activeRequests   int
	ewmaResponseTime time.Duration
	hasEWMA          bool
	failures         int64
}

// Options tunes an Upstream. The zero value forwards headers untouched, uses
// http.DefaultTransport and no circuit breaker.
type Options struct {
	ForwardedHeaders bool
	Transport        http.RoundTripper
	Breaker          *circuitbreaker.CircuitBreaker
	Logger           *slog.Logger
}

// Stats is a point-in-time view of the upstream.
type Stats struct {
	URL            string        `json:"url"`
	Healthy        bool          `json:"healthy"`
	ActiveRequests int           `json:"active_requests"`
	EWMAResponse   time.Duration `json:"ewma_response"`
	Failures       int64         `json:"failures"`
	Breaker        string        `json:"breaker,omitempty"`
}

const ewmaAlpha = 0.2

var forwardedHeaderNames = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

// New creates an Upstream for target, which must carry scheme and host only.
// The request path is forwarded as received, prefix included.
func New(target *url.URL, opts Options) *Upstream {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	u := &Upstream{
		url:              target,
		breaker:          opts.Breaker,
		logger:           log.With(slog.String("upstream", target.Redacted())),
		forwardedHeaders: opts.ForwardedHeaders,
		isHealthy:        true,
	}

	u.proxy = &httputil.ReverseProxy{
		Rewrite:        u.rewrite,
		Transport:      opts.Transport,
		ModifyResponse: u.modifyResponse,
		ErrorHandler:   u.handleError,
		ErrorLog:       slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	return u
}

func (u *Upstream) rewrite(pr *httputil.ProxyRequest) {
	// Rewrite receives an outbound request stripped of X-Forwarded-*; put the
	// caller's values back so headers reach the upstream unchanged.
	for _, name := range forwardedHeaderNames {
		if values, ok := pr.In.Header[name]; ok {
			pr.Out.Header[name] = values
		}
	}

	pr.SetURL(u.url)

	if u.forwardedHeaders {
		pr.SetXForwarded()
	}

	u.logger.Debug("forwarding request",
		slog.String("method", pr.In.Method),
		slog.String("path", pr.In.URL.RequestURI()),
		slog.String("target", pr.Out.URL.Redacted()))
}

func (u *Upstream) modifyResponse(res *http.Response) error {
	if u.breaker != nil {
		u.breaker.RecordSuccess()
	}

	u.logger.Debug("upstream response",
		slog.Int("status", res.StatusCode),
		slog.String("path", res.Request.URL.RequestURI()))

	return nil
}

func (u *Upstream) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		if u.breaker != nil {
			u.breaker.Release()
		}
		u.logger.Debug("client went away before upstream answered",
			slog.String("path", r.URL.RequestURI()))
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	u.mutex.Lock()
	u.failures++
	u.mutex.Unlock()

	if u.breaker != nil {
		u.breaker.RecordFailure()
	}

	u.logger.Error("upstream request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.RequestURI()),
		slog.String("reason", FailureReason(err)),
		slog.Any("err", err))

	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}

// ServeHTTP proxies r. Transport failures produce 502, an open breaker 503.
func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if u.breaker != nil && !u.breaker.Allow() {
		u.logger.Warn("circuit open, failing fast",
			slog.String("path", r.URL.RequestURI()))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	u.IncrementConn()
	defer u.DecrementConn()

	start := time.Now()
	u.proxy.ServeHTTP(w, r)
	u.RecordResponse(time.Since(start))
}

// FailureReason names the network-level cause of a proxy error.
func FailureReason(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection_refused"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection_reset"
	default:
		return "unknown"
	}
}

// IncrementConn increments the in-flight request count.
func (u *Upstream) IncrementConn() {
	u.mutex.Lock()
	u.activeRequests++
	u.mutex.Unlock()
}

// DecrementConn decrements the in-flight request count.
func (u *Upstream) DecrementConn() {
	u.mutex.Lock()
	if u.activeRequests > 0 {
		u.activeRequests--
	}
	u.mutex.Unlock()
}

func (u *Upstream) ActiveRequests() int {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.activeRequests
}

// URL returns the upstream origin.
func (u *Upstream) URL() *url.URL {
	return u.url
}

// IsHealthy reports the result of the last health probe. Routing never
// consults it.
func (u *Upstream) IsHealthy() bool {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.isHealthy
}

// SetHealthy updates the health status and reports whether it changed.
func (u *Upstream) SetHealthy(healthy bool) (changed bool) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.isHealthy == healthy {
		return false
	}

	u.isHealthy = healthy
	return true
}

// RecordResponse folds a request duration into the moving average.
func (u *Upstream) RecordResponse(duration time.Duration) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		u.ewmaResponseTime = duration
		u.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	u.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(u.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns 0 until a response has been recorded.
func (u *Upstream) EWMATime() time.Duration {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		return 0
	}

	return u.ewmaResponseTime
}

func (u *Upstream) Stats() Stats {
	u.mutex.Lock()
	stats := Stats{
		URL:            u.url.Redacted(),
		Healthy:        u.isHealthy,
		ActiveRequests: u.activeRequests,
		EWMAResponse:   u.ewmaResponseTime,
		Failures:       u.failures,
	}
	u.mutex.Unlock()

	if u.breaker != nil {
		stats.Breaker = u.breaker.State().String()
	}
	return stats
}
