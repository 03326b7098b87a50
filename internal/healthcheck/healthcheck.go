package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/fundamentos/dashboard-edge/internal/metrics"
)

// HealthPath is the upstream's liveness endpoint.
const HealthPath = "/health"

// Target is what the checker needs from the upstream.
type Target interface {
	URL() *url.URL
	SetHealthy(healthy bool) (changed bool)
}

// HealthCheck probes the target's /health endpoint once immediately and then
// every interval until ctx is done. Transitions are logged and reported to
// the collector, which may be nil.
func HealthCheck(
	ctx context.Context,
	target Target,
	interval time.Duration,
	logger *slog.Logger,
	collector *metrics.Collector,
) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	check := func() {
		healthy := Probe(ctx, client, target)
		if ctx.Err() != nil {
			return
		}

		if !target.SetHealthy(healthy) {
			return
		}

		collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventHealthChanged,
			Timestamp: time.Now(),
			Route:     "proxy",
			Healthy:   healthy,
		})

		if healthy {
			logger.Info("Upstream is back up",
				slog.String("upstream", target.URL().String()))
		} else {
			logger.Warn("Upstream is down",
				slog.String("upstream", target.URL().String()))
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("upstream", target.URL().String()))
			return

		case <-ticker.C:
			check()
		}
	}
}

// Probe reports whether GET {target}/health answers 200.
func Probe(ctx context.Context, client *http.Client, target Target) bool {
	healthURL := target.URL().ResolveReference(&url.URL{Path: HealthPath})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return false
	}

	res, err := client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode == http.StatusOK
}
