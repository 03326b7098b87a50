package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fundamentos/dashboard-edge/internal/metrics"
	"github.com/fundamentos/dashboard-edge/internal/static"
)

// Route is the per-request routing decision. It is never stored.
type Route int

const (
	RouteProxy Route = iota
	RouteStatic
	RouteFallback
)

func (r Route) String() string {
	switch r {
	case RouteProxy:
		return "proxy"
	case RouteStatic:
		return "static"
	case RouteFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

const requestIDHeader = "X-Request-ID"

// EdgeHandler routes each request to the upstream proxy or the static tree.
type EdgeHandler struct {
	logger           *slog.Logger
	prefix           string
	upstream         http.Handler
	assets           *static.Handler
	metricsCollector *metrics.Collector
}

// Options wires an EdgeHandler. A nil Upstream disables the proxy route and
// lets prefixed paths fall through to static serving.
type Options struct {
	Prefix    string
	Upstream  http.Handler
	Assets    *static.Handler
	Collector *metrics.Collector
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func NewEdgeHandler(logger *slog.Logger, opts Options) *EdgeHandler {
	return &EdgeHandler{
		logger:           logger,
		prefix:           strings.TrimRight(opts.Prefix, "/"),
		upstream:         opts.Upstream,
		assets:           opts.Assets,
		metricsCollector: opts.Collector,
	}
}

// MatchPrefix reports whether path is prefix itself or lies below it.
// "/apix" does not match "/api".
func MatchPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Classify decides the route. The prefix test runs first so an API request
// can never be answered with the HTML fallback while proxying is enabled.
func (h *EdgeHandler) Classify(r *http.Request) (Route, string) {
	if h.upstream != nil && MatchPrefix(r.URL.Path, h.prefix) {
		return RouteProxy, ""
	}

	if name, ok := h.assets.Lookup(r.URL.Path); ok {
		return RouteStatic, name
	}

	return RouteFallback, ""
}

func (h *EdgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	route, name := h.Classify(r)

	// Proxied responses go back exactly as the upstream sent them.
	if route != RouteProxy {
		w.Header().Set(requestIDHeader, requestID)
	}

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: start,
		Route:     route.String(),
	})

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

	switch {
	case route == RouteProxy:
		h.upstream.ServeHTTP(wrapped, r)
	case !readOnly(r.Method):
		// Files and the fallback are only served to GET and HEAD.
		http.NotFound(wrapped, r)
	case route == RouteStatic:
		if err := h.assets.ServeFile(wrapped, r, name); err != nil {
			h.logger.Warn("static file vanished, serving fallback",
				slog.String("file", name),
				slog.Any("err", err))
			route = RouteFallback
			_ = h.assets.ServeFallback(wrapped, r)
		}
	default:
		_ = h.assets.ServeFallback(wrapped, r)
	}

	duration := time.Since(start)

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Route:      route.String(),
		Duration:   duration,
		StatusCode: wrapped.statusCode,
	})

	h.logger.Info("Handled request",
		slog.String("request_id", requestID),
		slog.String("from", extractClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("route", route.String()),
		slog.Int("status", wrapped.statusCode),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()))
}

func readOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// reverse proxy uses to flush.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
