package errors

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindVoiceUnavailable Kind = "voice_unavailable"
	KindRateLimited      Kind = "rate_limited"
	KindNotReady         Kind = "not_ready"
	KindNarrationTooLong Kind = "narration_too_long"
	KindUpstream         Kind = "upstream"
	KindTimeout          Kind = "timeout"
	KindConfig           Kind = "config"
	KindStorage          Kind = "storage"
	KindBootstrap        Kind = "bootstrap"
	KindUnknown          Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error

	// RetryAfter is set on rate_limited errors so transports can surface
	// a Retry-After hint.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// RateLimited builds a rate_limited error carrying the retry-after hint.
func RateLimited(op, message string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Op:         op,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Convert returns the first typed error in the chain, or wraps an untyped
// error as KindUnknown so callers always get structured fields.
func Convert(err error) *Error {
	if err == nil {
		return nil
	}
	var target *Error
	if errors.As(err, &target) {
		return target
	}
	return &Error{Kind: KindUnknown, Op: "unknown", Message: err.Error(), Cause: err}
}

// KindOf returns the kind of the first typed error in the chain, or
// KindUnknown when the chain carries no typed error.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}
