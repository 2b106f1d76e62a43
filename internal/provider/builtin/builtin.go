// Package builtin binds the compiled-in adapters to startup configuration.
package builtin

import (
	"context"
	"net/http"

	"chat-relay/internal/config"
	"chat-relay/internal/provider"
	"chat-relay/internal/provider/anthropic"
	"chat-relay/internal/provider/cloudflare"
	"chat-relay/internal/provider/gemini"
	"chat-relay/internal/provider/openai"
)

// Factories returns one factory per compiled-in provider. systemPrompt is the
// assembled prompt every adapter sends through its system channel. A nil
// httpClient gets one with cfg.Timeout.
func Factories(ctx context.Context, cfg config.Config, systemPrompt string, httpClient *http.Client) map[string]provider.Factory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return map[string]provider.Factory{
		gemini.ID: func() (provider.Adapter, error) {
			return gemini.NewAdapter(ctx, gemini.Config{
				APIKey:          cfg.Gemini.APIKey,
				Model:           cfg.Gemini.Model,
				BaseURL:         cfg.Gemini.BaseURL,
				SystemPrompt:    systemPrompt,
				MaxHistoryTurns: cfg.Gemini.MaxHistoryTurns,
				MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
				HTTPClient:      httpClient,
			})
		},
		cloudflare.ID: func() (provider.Adapter, error) {
			return cloudflare.NewAdapter(cloudflare.Config{
				AccountID:       cfg.Cloudflare.AccountID,
				APIToken:        cfg.Cloudflare.APIKey,
				Model:           cfg.Cloudflare.Model,
				BaseURL:         cfg.Cloudflare.BaseURL,
				SystemPrompt:    systemPrompt,
				MaxHistoryTurns: cfg.Cloudflare.MaxHistoryTurns,
				MaxOutputTokens: cfg.Cloudflare.MaxOutputTokens,
			}, cloudflare.WithHTTPClient(httpClient))
		},
		openai.ID: func() (provider.Adapter, error) {
			return openai.NewAdapter(openai.Config{
				APIKey:          cfg.OpenAI.APIKey,
				Model:           cfg.OpenAI.Model,
				BaseURL:         cfg.OpenAI.BaseURL,
				SystemPrompt:    systemPrompt,
				MaxHistoryTurns: cfg.OpenAI.MaxHistoryTurns,
				MaxOutputTokens: cfg.OpenAI.MaxOutputTokens,
				HTTPClient:      httpClient,
			})
		},
		anthropic.ID: func() (provider.Adapter, error) {
			return anthropic.NewAdapter(anthropic.Config{
				APIKey:          cfg.Anthropic.APIKey,
				Model:           cfg.Anthropic.Model,
				BaseURL:         cfg.Anthropic.BaseURL,
				SystemPrompt:    systemPrompt,
				MaxHistoryTurns: cfg.Anthropic.MaxHistoryTurns,
				MaxOutputTokens: cfg.Anthropic.MaxOutputTokens,
				HTTPClient:      httpClient,
			})
		},
	}
}

// NewRegistry builds the registry from Factories.
func NewRegistry(ctx context.Context, cfg config.Config, systemPrompt string, httpClient *http.Client) (*provider.Registry, error) {
	return provider.NewRegistry(Factories(ctx, cfg, systemPrompt, httpClient))
}
