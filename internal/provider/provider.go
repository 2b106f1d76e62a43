package provider

import (
	"context"
	"errors"

	"chat-relay/internal/domain"
)

// Backend is implemented once per provider. BuildRequest projects a
// transcript into the provider's call shape, Invoke performs exactly one
// remote call, and Classify reduces the raw response to an Outcome.
type Backend[Req, Resp any] interface {
	ID() string
	BuildRequest(t domain.Transcript) (Req, error)
	Invoke(ctx context.Context, req Req) (Resp, error)
	Classify(resp Resp) Outcome
}

// Adapter is the provider-agnostic view of a Backend used by the rest of the
// relay.
type Adapter interface {
	ID() string
	Complete(ctx context.Context, t domain.Transcript) (Outcome, error)
}

type adapter[Req, Resp any] struct {
	backend Backend[Req, Resp]
}

// New wraps a Backend into an Adapter.
func New[Req, Resp any](b Backend[Req, Resp]) Adapter {
	return &adapter[Req, Resp]{backend: b}
}

func (a *adapter[Req, Resp]) ID() string {
	return a.backend.ID()
}

// Complete runs build, invoke and classify. Request-building errors such as
// ErrNoUserTurn are returned as is; every remote failure is a
// *TransportError. A response that arrives after ctx is done is discarded.
func (a *adapter[Req, Resp]) Complete(ctx context.Context, t domain.Transcript) (Outcome, error) {
	req, err := a.backend.BuildRequest(t)
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, &TransportError{Provider: a.ID(), Err: err}
	}

	resp, err := a.backend.Invoke(ctx, req)
	if err != nil {
		return Outcome{}, &TransportError{Provider: a.ID(), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, &TransportError{Provider: a.ID(), Err: err}
	}

	out := a.backend.Classify(resp)
	if out.Kind == OutcomeTransportFailed {
		return out, &TransportError{Provider: a.ID(), Err: errors.New(out.Detail)}
	}
	return out, nil
}
