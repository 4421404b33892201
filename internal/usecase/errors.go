package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorRateLimited     ErrorCode = "RATE_LIMITED"
	ErrorPaymentRequired ErrorCode = "PAYMENT_REQUIRED"
	ErrorUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrorNotFound        ErrorCode = "NOT_FOUND"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
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

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code carried by err, or ErrorInternal when err is not a
// usecase error.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}

// InvalidInputMessage returns the user-facing text for an INVALID_INPUT
// error. Reasons stay in logs.
func InvalidInputMessage(err error) string {
	var ue *Error
	if !errors.As(err, &ue) {
		return "Invalid request"
	}
	switch ue.Reason {
	case "invalid_body":
		return "Invalid request body"
	case "missing_user_id":
		return "User id is required"
	case "missing_conversation_id", "missing_session":
		return "Conversation id is required"
	case "missing_story_id":
		return "Story id is required"
	case "empty_transcript":
		return "Transcript is required"
	case "empty_message":
		return "Message is required"
	case "invalid_role":
		return "Unsupported message role"
	case "conversation_already_started":
		return "Conversation has already started"
	case "insufficient_turns", "no_user_turns":
		return "Please share more memories before generating a story"
	case "empty_title":
		return "Title is required"
	case "empty_content":
		return "Content is required"
	case "missing_title_or_content":
		return "Title and content are required"
	case "unknown_format":
		return "Unsupported export format"
	case "empty_text":
		return "Text is required"
	default:
		return "Invalid request"
	}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// UpstreamError classifies a failed model call. source prefixes the reason,
// e.g. "openai" yields "openai_rate_limited".
func UpstreamError(source string, err error) *Error {
	if status, ok := upstreamStatusCode(err); ok {
		switch status {
		case http.StatusTooManyRequests:
			return newError(ErrorRateLimited, source+"_rate_limited", err)
		case http.StatusPaymentRequired:
			return newError(ErrorPaymentRequired, source+"_payment_required", err)
		}
	}
	return newError(ErrorUpstream, source+"_error", err)
}
