package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fundamentos/dashboard-edge/config"
	"github.com/fundamentos/dashboard-edge/internal/circuitbreaker"
	"github.com/fundamentos/dashboard-edge/internal/handler"
	"github.com/fundamentos/dashboard-edge/internal/healthcheck"
	"github.com/fundamentos/dashboard-edge/internal/httpserver"
	"github.com/fundamentos/dashboard-edge/internal/metrics"
	"github.com/fundamentos/dashboard-edge/internal/static"
	"github.com/fundamentos/dashboard-edge/internal/upstream"
	"github.com/fundamentos/dashboard-edge/pkg/logger"
)

const metricsBufferSize = 1000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the edge server (default)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closer := logger.NewWithFile(cfg.Logging.Level, true, cfg.Server.Environment, logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, cfg, log, nil)
}

// serve runs the edge server until ctx is done. ready, when set, receives the
// bound address once the listener is up.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger, ready func(addr string)) error {
	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	up := buildUpstream(cfg, log)
	if up == nil {
		log.Warn("BACKEND_URL not set, /api requests fall through to static files")
	} else if cfg.Upstream.HealthInterval > 0 {
		go healthcheck.HealthCheck(ctx, up, cfg.Upstream.HealthInterval, log, collector)
	}

	if _, err := os.Stat(cfg.Server.StaticDir); errors.Is(err, fs.ErrNotExist) {
		log.Warn("Static directory does not exist, every route will answer 404",
			slog.String("static_dir", cfg.Server.StaticDir))
	}

	edge := buildEdgeHandler(cfg, log, up, collector)

	srv, err := httpserver.New(cfg.Addr(), edge, httpserver.Timeouts{
		Read:  cfg.Server.ReadTimeout,
		Write: cfg.Server.WriteTimeout,
		Idle:  cfg.Server.IdleTimeout,
	})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		return err
	}

	if err := srv.Listen(); err != nil {
		log.Error("Failed to bind listen address",
			slog.String("addr", cfg.Addr()),
			slog.Any("err", err))
		return err
	}

	logEffectiveConfig(log, cfg, srv.Addr())

	var adminSrv *httpserver.Server
	if cfg.Admin.Address != "" {
		adminSrv, err = httpserver.New(cfg.Admin.Address, setupAdminRouter(cfg, up, collector), httpserver.DefaultTimeouts)
		if err == nil {
			err = adminSrv.Listen()
		}
		if err != nil {
			log.Error("Failed to start admin server",
				slog.String("addr", cfg.Admin.Address),
				slog.Any("err", err))
			srv.Shutdown(context.Background())
			return err
		}
		log.Info("Admin server listening", slog.String("addr", adminSrv.Addr()))
	}

	if ready != nil {
		ready(srv.Addr())
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Serve()
	}()
	if adminSrv != nil {
		go func() {
			errCh <- adminSrv.Serve()
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errCh:
		if err != nil {
			log.Error("Server stopped unexpectedly", slog.Any("err", err))
		}
	}

	if shutdownErr := srv.Shutdown(context.Background()); shutdownErr != nil {
		log.Error("Error during shutdown", slog.Any("err", shutdownErr))
	}
	if adminSrv != nil {
		if shutdownErr := adminSrv.Shutdown(context.Background()); shutdownErr != nil {
			log.Error("Error during admin shutdown", slog.Any("err", shutdownErr))
		}
	}

	return err
}

// buildUpstream returns nil when no upstream is configured.
func buildUpstream(cfg *config.Config, log *slog.Logger) *upstream.Upstream {
	target := cfg.UpstreamURL()
	if target == nil {
		return nil
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.Upstream.BreakerThreshold > 0 {
		breaker = circuitbreaker.New(cfg.Upstream.BreakerThreshold, cfg.Upstream.BreakerReset)
	}

	return upstream.New(target, upstream.Options{
		ForwardedHeaders: cfg.Upstream.ForwardedHeaders,
		Breaker:          breaker,
		Logger:           log,
	})
}

func buildEdgeHandler(cfg *config.Config, log *slog.Logger, up *upstream.Upstream, collector *metrics.Collector) *handler.EdgeHandler {
	opts := handler.Options{
		Prefix:    config.APIPrefix,
		Assets:    static.New(cfg.Server.StaticDir, config.FallbackDocument, log),
		Collector: collector,
	}
	// A typed nil would read as a configured upstream.
	if up != nil {
		opts.Upstream = up
	}

	return handler.NewEdgeHandler(log, opts)
}

func logEffectiveConfig(log *slog.Logger, cfg *config.Config, addr string) {
	attrs := []any{
		slog.String("addr", addr),
		slog.String("environment", cfg.Server.Environment),
		slog.String("static_dir", cfg.Server.StaticDir),
		slog.String("api_prefix", config.APIPrefix),
		slog.Bool("proxy_enabled", cfg.ProxyEnabled()),
	}
	if cfg.ProxyEnabled() {
		attrs = append(attrs,
			slog.String("upstream", cfg.UpstreamURL().Redacted()),
			slog.Int("breaker_threshold", cfg.Upstream.BreakerThreshold),
			slog.Duration("health_interval", cfg.Upstream.HealthInterval))
	}

	log.Info("Edge server listening", attrs...)
}
