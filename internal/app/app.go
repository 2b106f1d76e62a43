// Package app wires configuration, providers, the chat service and the
// handler together for both entry points.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chat-relay/handler"
	"chat-relay/internal/config"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/metrics"
	"chat-relay/internal/provider"
	"chat-relay/internal/provider/builtin"
	"chat-relay/internal/usecase"
)

// App holds the wired components of one process.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Handler  *handler.Handler
	Stats    *metrics.Stats
	Registry *provider.Registry
	Metrics  *prometheus.Registry
}

// Options tweaks Build. The zero value is valid.
type Options struct {
	// HTTPClient is shared by every adapter; nil gets one with the
	// configured timeout.
	HTTPClient *http.Client
	// Prometheus, when set, receives the request metrics.
	Prometheus *prometheus.Registry
}

// LoadConfig reads configuration from the process environment. SSM is only
// contacted when a parameter prefix ends up configured.
func LoadConfig(ctx context.Context) (config.Config, error) {
	return config.Load(ctx, config.Source{Params: &lazyParams{ctx: ctx}})
}

// Build assembles the relay from cfg.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := builtin.NewRegistry(ctx, cfg, usecase.BuildSystemPrompt(cfg.SystemPrompt), opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("app: build provider registry: %w", err)
	}
	if _, err := registry.Select(cfg.Provider); err != nil {
		// Requests will fail with UNSUPPORTED_PROVIDER; surface it at startup.
		logger.Warn("configured provider is not usable", "provider", cfg.Provider, "err", err)
	}

	stats := metrics.NewStats()
	recorders := []metrics.Recorder{stats}
	if opts.Prometheus != nil {
		promRecorder, err := metrics.NewPrometheusRecorder(opts.Prometheus)
		if err != nil {
			return nil, fmt.Errorf("app: setup prometheus recorder: %w", err)
		}
		recorders = append(recorders, promRecorder)
	}

	svc, err := usecase.NewChatService(registry, cfg.Provider, metrics.NewMultiRecorder(recorders...), logger)
	if err != nil {
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}
	h, err := handler.NewHandler(svc, stats, logger)
	if err != nil {
		return nil, fmt.Errorf("app: create handler: %w", err)
	}

	logger.Info("chat relay ready",
		"provider", cfg.Provider,
		"configured", registry.Configured(),
		"timeout", cfg.Timeout.String(),
	)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Handler:  h,
		Stats:    stats,
		Registry: registry,
		Metrics:  opts.Prometheus,
	}, nil
}

// NewPrometheusRegistry returns a registry with the Go runtime and process
// collectors already registered.
func NewPrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewLogger returns a JSON slog logger at the named level. Unknown levels
// fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// lazyParams defers AWS config loading until the first parameter read.
type lazyParams struct {
	ctx context.Context

	once   sync.Once
	client *paramstore.Client
	err    error

	// loadAWS is swapped in tests.
	loadAWS func(ctx context.Context) (aws.Config, error)
}

func (p *lazyParams) GetParameter(ctx context.Context, name string) (string, error) {
	p.once.Do(func() {
		load := p.loadAWS
		if load == nil {
			load = func(ctx context.Context) (aws.Config, error) {
				return awsconfig.LoadDefaultConfig(ctx)
			}
		}
		cfg, err := load(p.ctx)
		if err != nil {
			p.err = fmt.Errorf("app: load AWS config: %w", err)
			return
		}
		p.client, p.err = paramstore.New(awsssm.NewFromConfig(cfg))
	})
	if p.err != nil {
		return "", p.err
	}
	return p.client.GetParameter(ctx, name)
}
