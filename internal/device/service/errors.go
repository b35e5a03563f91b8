package service

import (
	"errors"
	"fmt"
	"time"

	"device-session-gate/internal/device/repository"
)

// Kind classifies a service error for callers; the HTTP handler maps it to a status code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Machine-readable error codes returned to clients.
const (
	CodeMissingFields      = "missing-fields"
	CodeMissingCredentials = "missing-credentials"
	CodeInvalidCredentials = "invalid-credentials"
	CodeSuperseded         = "superseded"
	CodeExpired            = "expired"
	CodeNotFound           = "not-found"
	CodeConflict           = "conflict"
	CodeUnavailable        = "unavailable"
)

// Error is the single error type returned by the device services.
// LoggedOutAt is set for superseded sessions; CooldownRemainingSeconds only when a login is cooldown-blocked.
type Error struct {
	Kind                     Kind
	Code                     string
	Message                  string
	LoggedOutAt              *time.Time
	CooldownRemainingSeconds *int
	Err                      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindTransient for errors that did not originate here.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindTransient
}

func errMissingFields() *Error {
	return &Error{Kind: KindValidation, Code: CodeMissingFields, Message: "Email and device_id are required"}
}

func errMissingCredentials() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeMissingCredentials, Message: "Missing authentication headers"}
}

func errInvalidCredentials() *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeInvalidCredentials, Message: "Invalid credentials"}
}

func errSessionEnded(loggedOutAt *time.Time) *Error {
	return &Error{
		Kind:        KindUnauthorized,
		Code:        CodeSuperseded,
		Message:     "Session ended - logged in from another device",
		LoggedOutAt: loggedOutAt,
	}
}

func errCooldown(loggedOutAt time.Time, remaining int) *Error {
	at := loggedOutAt
	return &Error{
		Kind:                     KindUnauthorized,
		Code:                     CodeSuperseded,
		Message:                  "Session ended - you are logged in on another device",
		LoggedOutAt:              &at,
		CooldownRemainingSeconds: &remaining,
	}
}

func errExpired() *Error {
	return &Error{Kind: KindForbidden, Code: CodeExpired, Message: "Device has expired"}
}

func errNotFound() *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "Device not found"}
}

func errUnavailable(err error) *Error {
	return &Error{Kind: KindTransient, Code: CodeUnavailable, Message: "Device store unavailable, retry later", Err: err}
}

// classify wraps a store error. Optimistic-concurrency failures become KindConflict and
// everything else, timeouts included, is transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrDuplicate) {
		return &Error{Kind: KindConflict, Code: CodeConflict, Message: "Device record changed concurrently", Err: err}
	}
	return errUnavailable(err)
}
