package authz

import (
	"errors"
	"fmt"
)

// Kind classifies authorization failures so callers can react without
// string matching. Only KindExternalService failures are worth retrying;
// everything else is deterministic for the same input.
type Kind string

const (
	// KindUnknown: the error carries no classification.
	KindUnknown Kind = ""

	// KindUnauthorized: no strategy can handle the principal, or the
	// token is not acceptable (wrong issuer, inactive token).
	KindUnauthorized Kind = "unauthorized"

	// KindForbidden: the principal is known but lacks permission.
	KindForbidden Kind = "forbidden"

	// KindValidation: a required claim is missing or malformed.
	KindValidation Kind = "validation"

	// KindExternalService: the introspection call failed (network error,
	// timeout, non-2xx). Retryable at a higher layer.
	KindExternalService Kind = "external_service"

	// KindMapping: the external-to-internal role mapping lookup failed.
	KindMapping Kind = "mapping"

	// KindConfiguration: broken wiring detected at runtime; fatal when
	// surfaced at startup.
	KindConfiguration Kind = "configuration"
)

// Error is a classified authorization failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an underlying error with a classification.
func WrapError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the classification of err, KindUnknown for unclassified
// errors.
func KindOf(err error) Kind {
	var authzErr *Error
	if errors.As(err, &authzErr) {
		return authzErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
