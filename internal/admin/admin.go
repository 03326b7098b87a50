package admin

import (
	"encoding/json"
	"net/http"

	"github.com/fundamentos/dashboard-edge/internal/metrics"
	"github.com/fundamentos/dashboard-edge/internal/upstream"
)

// Status is the /healthz body.
type Status struct {
	Status       string          `json:"status"`
	ProxyEnabled bool            `json:"proxy_enabled"`
	StaticRoot   string          `json:"static_root"`
	Upstream     *upstream.Stats `json:"upstream,omitempty"`
}

// StatsSource reports upstream figures; *upstream.Upstream satisfies it.
type StatsSource interface {
	Stats() upstream.Stats
}

// NewMux builds the admin router. up may be nil when proxying is disabled;
// collector may be nil when metrics are off, in which case /metrics is not
// registered.
func NewMux(staticRoot string, up StatsSource, collector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := Status{
			Status:       "ok",
			ProxyEnabled: up != nil,
			StaticRoot:   staticRoot,
		}
		if up != nil {
			stats := up.Stats()
			status.Upstream = &stats
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	if collector != nil {
		mux.HandleFunc("GET /metrics", collector.Handler())
	}

	return mux
}
