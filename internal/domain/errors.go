package domain

import (
	"fmt"

	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
)

// ErrorKind classifies a workflow failure.
type ErrorKind string

const (
	KindIllegalTransition      ErrorKind = "ILLEGAL_TRANSITION"
	KindUnauthorized           ErrorKind = "UNAUTHORIZED"
	KindTerminalState          ErrorKind = "TERMINAL_STATE"
	KindConcurrentModification ErrorKind = "CONCURRENT_MODIFICATION"
	KindNoEligibleAssignee     ErrorKind = "NO_ELIGIBLE_ASSIGNEE"
	KindInsufficientSources    ErrorKind = "INSUFFICIENT_SOURCES"
	KindIneligibleStatus       ErrorKind = "INELIGIBLE_STATUS"
	KindCurrencyMismatch       ErrorKind = "CURRENCY_MISMATCH"
	KindAlreadyCombined        ErrorKind = "ALREADY_COMBINED"
	KindRequestIsCombined      ErrorKind = "REQUEST_IS_COMBINED"
	KindConfigurationMissing   ErrorKind = "CONFIGURATION_MISSING"
)

// Error is a typed workflow failure. errors.Is matches on Kind, so callers
// compare against the Err* values below.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ErrorCode maps the kind onto an application error code.
func (e *Error) ErrorCode() errors.ErrorCode {
	switch e.Kind {
	case KindUnauthorized:
		return errors.ErrCodeForbidden
	case KindConcurrentModification, KindAlreadyCombined, KindRequestIsCombined:
		return errors.ErrCodeConflict
	case KindInsufficientSources, KindCurrencyMismatch:
		return errors.ErrCodeInvalidInput
	case KindNoEligibleAssignee, KindConfigurationMissing:
		return errors.ErrCodeUnavailable
	default:
		return errors.ErrCodePreconditionFailed
	}
}

// Retryable reports whether a caller may re-read and try the same action again.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrentModification
}

var (
	ErrIllegalTransition      = &Error{Kind: KindIllegalTransition}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrTerminalState          = &Error{Kind: KindTerminalState}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrNoEligibleAssignee     = &Error{Kind: KindNoEligibleAssignee}
	ErrInsufficientSources    = &Error{Kind: KindInsufficientSources}
	ErrIneligibleStatus       = &Error{Kind: KindIneligibleStatus}
	ErrCurrencyMismatch       = &Error{Kind: KindCurrencyMismatch}
	ErrAlreadyCombined        = &Error{Kind: KindAlreadyCombined}
	ErrRequestIsCombined      = &Error{Kind: KindRequestIsCombined}
	ErrConfigurationMissing   = &Error{Kind: KindConfigurationMissing}
)

// NewError builds a kind-tagged error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
