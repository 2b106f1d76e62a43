package usecase

import (
	"fmt"

	"chat-relay/internal/transcript"
)

type ErrorCode string

const (
	ErrorValidation          ErrorCode = "VALIDATION_ERROR"
	ErrorNoUserTurn          ErrorCode = "NO_USER_TURN"
	ErrorUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
	ErrorProvider            ErrorCode = "PROVIDER_ERROR"
	ErrorRateLimited         ErrorCode = "RATE_LIMITED"
	ErrorInternal            ErrorCode = "INTERNAL_ERROR"
)

// Error is the only failure type returned past the usecase layer.
// Reason is a stable snake_case tag for logs; Message is safe to show
// callers and never carries credentials, URLs or upstream bodies.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Fields  []transcript.FieldError
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason, message string, err error) *Error {
	return &Error{Code: code, Reason: reason, Message: message, Err: err}
}
