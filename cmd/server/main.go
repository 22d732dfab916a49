// Command server runs the citation discovery HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/citation-discovery-service/internal/app"
	"github.com/helixir/citation-discovery-service/internal/config"
	"github.com/helixir/citation-discovery-service/internal/observability"
	httpserver "github.com/helixir/citation-discovery-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	}).With().Str("component", "server").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	api := newAPIServer(cfg, svc, logger)
	metrics := newMetricsServer(cfg)

	logger.Info().
		Str("http_address", cfg.Server.HTTPAddress()).
		Str("cache_backend", cfg.Cache.Backend).
		Strs("providers", enabledSources(svc)).
		Msg("citation-discovery-service ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreClosed(api.Start())
	})
	if metrics != nil {
		g.Go(func() error {
			logger.Info().Str("address", metrics.Addr).Msg("metrics server starting")
			return ignoreClosed(metrics.ListenAndServe())
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := api.Shutdown(shutdownCtx)
		if metrics != nil {
			err = errors.Join(err, metrics.Shutdown(shutdownCtx))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

func newAPIServer(cfg *config.Config, svc *app.Service, logger zerolog.Logger) *httpserver.Server {
	opts := []httpserver.Option{httpserver.WithReadiness(svc.Ready)}
	if svc.Metrics != nil {
		opts = append(opts, httpserver.WithRecorder(svc.Metrics))
	}
	return httpserver.NewServer(httpserver.Config{
		Address:        cfg.Server.HTTPAddress(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    2 * time.Minute,
		ListingTimeout: cfg.Resolver.Timeout,
	}, svc.Resolver, svc.Registry, logger, opts...)
}

// newMetricsServer returns nil when metrics are disabled.
func newMetricsServer(cfg *config.Config) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	return &http.Server{
		Addr:         cfg.Server.MetricsAddress(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func enabledSources(svc *app.Service) []string {
	enabled := svc.Registry.Enabled()
	out := make([]string, 0, len(enabled))
	for _, a := range enabled {
		out = append(out, string(a.Source()))
	}
	return out
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
