package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/app"
	"chat-relay/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("chat relay stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	promRegistry := app.NewPrometheusRegistry()
	a, err := app.Build(ctx, cfg, logger, app.Options{Prometheus: promRegistry})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	if cfg.MetricsAddr == "" {
		mux.Handle("/metrics", metrics.Handler(promRegistry))
	} else {
		metricsServer, err := metrics.StartPrometheusServer(cfg.MetricsAddr, promRegistry)
		if err != nil {
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
		defer func() { _ = metrics.StopServer(context.Background(), metricsServer) }()
		logger.Info("metrics endpoint listening", "addr", metricsServer.Addr)
	}
	mux.Handle("/", a.Handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// The outbound call is bounded by cfg.Timeout.
		WriteTimeout: cfg.Timeout + 10*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chat relay listening", "addr", srv.Addr, "provider", cfg.Provider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
