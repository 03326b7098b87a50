package main

import (
	"net/http"

	"github.com/fundamentos/dashboard-edge/config"
	"github.com/fundamentos/dashboard-edge/internal/admin"
	"github.com/fundamentos/dashboard-edge/internal/metrics"
	"github.com/fundamentos/dashboard-edge/internal/upstream"
)

// setupAdminRouter serves /healthz and /metrics on the admin listener, kept
// apart from the public routing table.
func setupAdminRouter(cfg *config.Config, up *upstream.Upstream, collector *metrics.Collector) http.Handler {
	if up == nil {
		return admin.NewMux(cfg.Server.StaticDir, nil, collector)
	}
	return admin.NewMux(cfg.Server.StaticDir, up, collector)
}
