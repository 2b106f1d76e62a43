package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/metrics"
	"chat-relay/internal/provider"
	"chat-relay/internal/transcript"
)

// ProviderSelector resolves the configured provider id to an adapter.
// *provider.Registry satisfies it.
type ProviderSelector interface {
	Select(id string) (provider.Adapter, error)
}

type ChatService struct {
	providers  ProviderSelector
	providerID string
	recorder   metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

func NewChatService(providers ProviderSelector, providerID string, recorder metrics.Recorder, logger *slog.Logger) (*ChatService, error) {
	if providers == nil {
		return nil, errors.New("usecase: provider selector must not be nil")
	}
	providerID = strings.ToLower(strings.TrimSpace(providerID))
	if providerID == "" {
		return nil, errors.New("usecase: provider id must not be empty")
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		providers:  providers,
		providerID: providerID,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// ProviderID is the configured provider identifier.
func (s *ChatService) ProviderID() string {
	return s.providerID
}

// Chat validates the raw request body, runs the configured adapter exactly
// once and normalizes its result. Every failure is a *Error.
func (s *ChatService) Chat(ctx context.Context, raw []byte) (domain.Reply, error) {
	log := s.logger.With("correlation_id", CorrelationID(ctx), "provider", s.providerID)

	t, err := transcript.Validate(raw)
	if err != nil {
		s.recorder.ObserveRequest(s.providerID, metrics.OutcomeRejected)
		ucErr := classifyError(s.providerID, provider.Outcome{}, err)
		log.InfoContext(ctx, "chat request rejected", "code", ucErr.Code, "violations", len(ucErr.Fields))
		return domain.Reply{}, ucErr
	}

	adapter, err := s.providers.Select(s.providerID)
	if err != nil {
		s.recorder.ObserveRequest(s.providerID, metrics.OutcomeUnavailable)
		ucErr := classifyError(s.providerID, provider.Outcome{}, err)
		log.ErrorContext(ctx, "provider unavailable", "reason", ucErr.Reason, "err", err)
		return domain.Reply{}, ucErr
	}

	start := s.now()
	out, callErr := adapter.Complete(ctx, t)
	elapsed := s.now().Sub(start)

	reply, err := Normalize(adapter.ID(), out, callErr)
	outcome := outcomeLabel(out, callErr)
	if !errors.Is(callErr, provider.ErrNoUserTurn) {
		s.recorder.ObserveProviderCall(adapter.ID(), elapsed)
	}
	s.recorder.ObserveRequest(adapter.ID(), outcome)

	if err != nil {
		var ucErr *Error
		if errors.As(err, &ucErr) && ucErr.Code == ErrorNoUserTurn {
			log.InfoContext(ctx, "chat request rejected", "code", ucErr.Code)
		} else {
			log.ErrorContext(ctx, "provider call failed",
				"outcome", outcome,
				"latency_ms", elapsed.Milliseconds(),
				"err", callErr,
			)
		}
		return domain.Reply{}, err
	}

	attrs := []any{
		"outcome", outcome,
		"latency_ms", elapsed.Milliseconds(),
		"messages", len(t.Messages),
		"reply_chars", len([]rune(reply.ReplyText)),
	}
	if out.Kind == provider.OutcomeBlocked {
		attrs = append(attrs, "block_reason", out.Reason)
	}
	log.InfoContext(ctx, "chat completed", attrs...)
	return reply, nil
}

func outcomeLabel(out provider.Outcome, err error) string {
	switch {
	case errors.Is(err, provider.ErrNoUserTurn):
		return metrics.OutcomeRejected
	case err != nil:
		return provider.OutcomeTransportFailed.String()
	default:
		return out.Kind.String()
	}
}

type correlationIDKey struct{}

// WithCorrelationID attaches the request correlation id to ctx for logging.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
