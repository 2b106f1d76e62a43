package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/transcript"
)

func newTestRegistry(t *testing.T, b *fakeBackend) *Registry {
	t.Helper()
	r, err := NewRegistry(map[string]Factory{
		"gemini": func() (Adapter, error) { return New[transcript.Conversation, string](b), nil },
		"cloudflare": func() (Adapter, error) {
			return nil, errors.New("missing CF_ACCOUNT_ID")
		},
	})
	require.NoError(t, err)
	return r
}

func TestNewRegistry_RequiresFactories(t *testing.T) {
	_, err := NewRegistry(nil)
	require.Error(t, err)
}

func TestSelect_Configured(t *testing.T) {
	b := &fakeBackend{id: "gemini"}
	r := newTestRegistry(t, b)

	a, err := r.Select("gemini")
	require.NoError(t, err)
	require.Equal(t, "gemini", a.ID())

	a, err = r.Select("  GEMINI ")
	require.NoError(t, err)
	require.Equal(t, "gemini", a.ID())
}

func TestSelect_UnsupportedFailsBeforeAnyCall(t *testing.T) {
	b := &fakeBackend{id: "gemini"}
	r := newTestRegistry(t, b)

	_, err := r.Select("llama-local")
	var uErr *UnsupportedProviderError
	require.ErrorAs(t, err, &uErr)
	require.Equal(t, "llama-local", uErr.ID)
	require.Equal(t, []string{"cloudflare", "gemini"}, uErr.Supported)
	require.Zero(t, b.invokes)
}

func TestSelect_UnconfiguredFailsFast(t *testing.T) {
	r := newTestRegistry(t, &fakeBackend{id: "gemini"})

	_, err := r.Select("cloudflare")
	var cErr *UnconfiguredProviderError
	require.ErrorAs(t, err, &cErr)
	require.Equal(t, "cloudflare", cErr.ID)
	require.ErrorContains(t, err, "missing CF_ACCOUNT_ID")
}

func TestRegistry_Lists(t *testing.T) {
	r := newTestRegistry(t, &fakeBackend{id: "gemini"})
	require.Equal(t, []string{"cloudflare", "gemini"}, r.Supported())
	require.Equal(t, []string{"gemini"}, r.Configured())
}

func TestRegistry_NilFactoryIsUnconfigured(t *testing.T) {
	r, err := NewRegistry(map[string]Factory{"openai": nil})
	require.NoError(t, err)
	_, err = r.Select("openai")
	var cErr *UnconfiguredProviderError
	require.ErrorAs(t, err, &cErr)
}
