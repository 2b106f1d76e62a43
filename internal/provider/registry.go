package provider

import (
	"errors"
	"sort"
	"strings"
)

// Factory builds an adapter from startup configuration. It returns an error
// when the provider's required configuration is absent.
type Factory func() (Adapter, error)

// Registry is the static provider lookup. It is built once at startup and
// only read afterwards.
type Registry struct {
	adapters     map[string]Adapter
	unconfigured map[string]error
	supported    []string
}

// NewRegistry runs every factory once. Providers whose factory fails stay
// known but unusable.
func NewRegistry(factories map[string]Factory) (*Registry, error) {
	if len(factories) == 0 {
		return nil, errors.New("provider: no factories registered")
	}
	r := &Registry{
		adapters:     make(map[string]Adapter, len(factories)),
		unconfigured: make(map[string]error),
	}
	for id, factory := range factories {
		id = normalizeID(id)
		r.supported = append(r.supported, id)
		if factory == nil {
			r.unconfigured[id] = errors.New("no factory")
			continue
		}
		a, err := factory()
		if err != nil {
			r.unconfigured[id] = err
			continue
		}
		r.adapters[id] = a
	}
	sort.Strings(r.supported)
	return r, nil
}

// Select returns the adapter registered under id.
func (r *Registry) Select(id string) (Adapter, error) {
	id = normalizeID(id)
	if a, ok := r.adapters[id]; ok {
		return a, nil
	}
	if err, ok := r.unconfigured[id]; ok {
		return nil, &UnconfiguredProviderError{ID: id, Err: err}
	}
	return nil, &UnsupportedProviderError{ID: id, Supported: r.Supported()}
}

// Supported lists every compiled-in provider id, configured or not.
func (r *Registry) Supported() []string {
	return append([]string(nil), r.supported...)
}

// Configured lists the provider ids that can serve requests.
func (r *Registry) Configured() []string {
	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
