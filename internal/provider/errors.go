package provider

import (
	"errors"
	"fmt"
	"strings"

	"chat-relay/internal/transcript"
)

// ErrNoUserTurn is returned by every adapter before any remote call when the
// transcript has no user message.
var ErrNoUserTurn = transcript.ErrNoUserTurn

// UnsupportedProviderError means the identifier matches no compiled-in adapter.
type UnsupportedProviderError struct {
	ID        string
	Supported []string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("provider: unsupported provider %q (supported: %s)", e.ID, strings.Join(e.Supported, ", "))
}

// UnconfiguredProviderError means the adapter exists but its required
// configuration was absent at startup.
type UnconfiguredProviderError struct {
	ID  string
	Err error
}

func (e *UnconfiguredProviderError) Error() string {
	return fmt.Sprintf("provider: %s is not configured: %v", e.ID, e.Err)
}

func (e *UnconfiguredProviderError) Unwrap() error {
	return e.Err
}

// TransportError wraps any failure of the remote call: network errors,
// non-2xx statuses, malformed bodies, or a body reporting failure.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider: %s call failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// StatusCode returns the upstream HTTP status carried anywhere in err's chain.
func StatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

type upstreamMessager interface {
	UpstreamMessage() string
}

// UpstreamMessage returns the provider's own error text carried anywhere in
// err's chain, or "".
func UpstreamMessage(err error) string {
	var m upstreamMessager
	if !errors.As(err, &m) {
		return ""
	}
	return m.UpstreamMessage()
}

// StatusError is a minimal HTTPStatusCode carrier for SDK errors that expose
// the status as a plain field.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}
