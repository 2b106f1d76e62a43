package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chat-relay/internal/domain"
	"chat-relay/internal/provider"
	"chat-relay/internal/transcript"
)

// Fixed replies for outcomes that carry no usable text. They are returned as
// normal replies, not errors.
const (
	BlockedReplyText = "Xin lỗi, nội dung bị chặn bởi AI. Vui lòng thử câu hỏi khác."
	EmptyReplyText   = "Xin lỗi, tôi không thể tạo câu trả lời. Vui lòng thử lại."
)

const maxDetailLen = 200

// Normalize collapses an adapter result into the canonical reply or a
// *Error. Provider field names and raw statuses stop here.
func Normalize(providerID string, out provider.Outcome, err error) (domain.Reply, error) {
	if err != nil {
		return domain.Reply{}, classifyError(providerID, out, err)
	}

	switch out.Kind {
	case provider.OutcomeCompleted:
		return domain.Reply{ReplyText: out.Text, ProviderID: providerID}, nil
	case provider.OutcomeBlocked:
		return domain.Reply{ReplyText: BlockedReplyText, ProviderID: providerID}, nil
	case provider.OutcomeEmpty:
		return domain.Reply{ReplyText: EmptyReplyText, ProviderID: providerID}, nil
	case provider.OutcomeTransportFailed:
		return domain.Reply{}, newError(ErrorProvider, "provider_failure", providerMessage(providerID, out.Detail), errors.New(out.Detail))
	default:
		return domain.Reply{}, newError(ErrorInternal, "unknown_outcome", "Internal error", fmt.Errorf("usecase: unknown outcome %s", out.Kind))
	}
}

func classifyError(providerID string, out provider.Outcome, err error) *Error {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr
	}

	var validationErr *transcript.ValidationError
	if errors.As(err, &validationErr) {
		e := newError(ErrorValidation, "invalid_transcript", "Invalid request body", err)
		e.Fields = append([]transcript.FieldError(nil), validationErr.Fields...)
		return e
	}
	if errors.Is(err, provider.ErrNoUserTurn) {
		return newError(ErrorNoUserTurn, "no_user_turn", "Transcript must contain at least one user message", err)
	}

	var unsupported *provider.UnsupportedProviderError
	if errors.As(err, &unsupported) {
		return newError(ErrorUnsupportedProvider, "unsupported_provider",
			fmt.Sprintf("Provider %q is not supported", unsupported.ID), err)
	}
	var unconfigured *provider.UnconfiguredProviderError
	if errors.As(err, &unconfigured) {
		return newError(ErrorUnsupportedProvider, "unconfigured_provider",
			fmt.Sprintf("Provider %q is not configured", unconfigured.ID), err)
	}

	var transportErr *provider.TransportError
	if errors.As(err, &transportErr) {
		if status, ok := provider.StatusCode(err); ok {
			if status == http.StatusTooManyRequests {
				return newError(ErrorRateLimited, "provider_rate_limited", "Provider rate limit exceeded, try again later", err)
			}
			detail := fmt.Sprintf("upstream returned status %d", status)
			if msg := provider.UpstreamMessage(err); msg != "" {
				detail += ": " + msg
			}
			return newError(ErrorProvider, "provider_status", providerMessage(providerID, detail), err)
		}
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return newError(ErrorProvider, "provider_timeout", providerMessage(providerID, "request timed out"), err)
		case errors.Is(err, context.Canceled):
			return newError(ErrorProvider, "request_canceled", providerMessage(providerID, "request canceled"), err)
		case out.Kind == provider.OutcomeTransportFailed:
			return newError(ErrorProvider, "provider_failure", providerMessage(providerID, out.Detail), err)
		default:
			return newError(ErrorProvider, "provider_unreachable", providerMessage(providerID, "request failed"), err)
		}
	}

	return newError(ErrorInternal, "unexpected_error", "Internal error", err)
}

// providerMessage builds a caller-facing message from a detail that came
// from the provider's own error payload.
func providerMessage(providerID, detail string) string {
	detail = strings.Join(strings.Fields(detail), " ")
	if r := []rune(detail); len(r) > maxDetailLen {
		detail = string(r[:maxDetailLen]) + "…"
	}
	if detail == "" {
		return fmt.Sprintf("%s: provider error", providerID)
	}
	return fmt.Sprintf("%s: %s", providerID, detail)
}
