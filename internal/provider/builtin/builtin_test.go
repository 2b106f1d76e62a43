package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/config"
	"chat-relay/internal/domain"
	"chat-relay/internal/provider"
	"chat-relay/internal/usecase"
)

func TestNewRegistry_OnlyCredentialedProvidersAreConfigured(t *testing.T) {
	cfg := config.Config{
		Provider: "gemini",
		Timeout:  time.Second,
		Gemini:   config.ProviderConfig{APIKey: "g-key"},
		Cloudflare: config.ProviderConfig{
			APIKey: "cf-token",
			// account id missing
		},
	}
	r, err := NewRegistry(context.Background(), cfg, "prompt", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"anthropic", "cloudflare", "gemini", "openai"}, r.Supported())
	assert.Equal(t, []string{"gemini"}, r.Configured())

	_, err = r.Select("cloudflare")
	var unconfigured *provider.UnconfiguredProviderError
	require.ErrorAs(t, err, &unconfigured)
	assert.Contains(t, err.Error(), "account id")

	a, err := r.Select(" GEMINI ")
	require.NoError(t, err)
	assert.Equal(t, "gemini", a.ID())
}

func TestFactories_CloudflarePassesConfigThrough(t *testing.T) {
	var got struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/accounts/acc-1/ai/run/@cf/test-model") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer cf-token" {
			t.Errorf("unexpected authorization header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"result":{"response":"Chào bạn"}}`))
	}))
	defer srv.Close()

	cfg := config.Config{
		Timeout: time.Second,
		Cloudflare: config.ProviderConfig{
			APIKey:          "cf-token",
			AccountID:       "acc-1",
			Model:           "@cf/test-model",
			BaseURL:         srv.URL,
			MaxOutputTokens: 123,
		},
	}
	factory := Factories(context.Background(), cfg, "PC advisor", srv.Client())["cloudflare"]
	require.NotNil(t, factory)
	a, err := factory()
	require.NoError(t, err)

	out, err := a.Complete(context.Background(), domain.Transcript{Messages: []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Xin chào"},
	}})
	require.NoError(t, err)
	assert.Equal(t, provider.Completed("Chào bạn"), out)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "PC advisor", got.Messages[0].Content)
	assert.Equal(t, "Xin chào", got.Messages[1].Content)
	assert.Equal(t, 123, got.MaxTokens)
}

func TestFactories_CloudflareErrorMessageReachesCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"message":"No such model @cf/bogus"}]}`))
	}))
	defer srv.Close()

	cfg := config.Config{
		Timeout: time.Second,
		Cloudflare: config.ProviderConfig{
			APIKey:    "cf-token",
			AccountID: "acc-1",
			Model:     "@cf/bogus",
			BaseURL:   srv.URL,
		},
	}
	a, err := Factories(context.Background(), cfg, "", srv.Client())["cloudflare"]()
	require.NoError(t, err)

	out, callErr := a.Complete(context.Background(), domain.Transcript{Messages: []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "hi"},
	}})
	_, err = usecase.Normalize(a.ID(), out, callErr)

	var ucErr *usecase.Error
	require.ErrorAs(t, err, &ucErr)
	assert.Equal(t, usecase.ErrorProvider, ucErr.Code)
	assert.Equal(t, "cloudflare: upstream returned status 400: No such model @cf/bogus", ucErr.Message)
	assert.NotContains(t, ucErr.Message, "acc-1")
}
