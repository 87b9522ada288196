package sandbox

import (
	"errors"
	"fmt"
)

// Kind is a contract-level error category (§7). The HTTP layer maps each
// Kind to exactly one status code; nothing below internal/api should know
// about HTTP at all.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidState      Kind = "invalid_state"
	KindEngineUnavailable Kind = "engine_unavailable"
	KindTimeout           Kind = "timeout"
	KindStoreUnavailable  Kind = "store_unavailable"
	KindInternal          Kind = "internal"
)

// Error is a tagged error variant carrying a Kind, a message, and an
// optional wrapped cause. It replaces the teacher's flat sentinel-error
// style (internal/driver/driver.go's ErrSandboxNotFound and friends) with
// the fuller §7 taxonomy, while keeping the same "compare with errors.Is"
// ergonomics via Is/Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, sandbox.New(KindNotFound, "")) to match any error
// of the same Kind, regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a new *Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a new *Error of the given Kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindInternal if err is
// not (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Convenience sentinels for errors.Is comparisons, mirroring the shape of
// the teacher's driver.Err* package-level vars but expressed as Kind-tagged
// *Error values so they compose with Wrap/errors.Is uniformly.
var (
	ErrNotFound          = New(KindNotFound, "not found")
	ErrConflict          = New(KindConflict, "already exists")
	ErrInvalidState      = New(KindInvalidState, "invalid state for operation")
	ErrEngineUnavailable = New(KindEngineUnavailable, "container engine unavailable")
	ErrTimeout           = New(KindTimeout, "operation timed out")
	ErrStoreUnavailable  = New(KindStoreUnavailable, "registry store unavailable")
	ErrForbidden         = New(KindForbidden, "forbidden")
	ErrUnauthenticated   = New(KindUnauthenticated, "unauthenticated")
)
