package engine

import (
	"errors"
	"fmt"
)

// Kind is the stable error category surfaced to callers. The API layer maps
// kinds to status codes; messages are for humans.
type Kind string

const (
	KindInvalidInput            Kind = "INVALID_INPUT"
	KindInvalidStatusTransition Kind = "INVALID_STATUS_TRANSITION"
	KindInsufficientPoints      Kind = "INSUFFICIENT_POINTS"
	KindRewardOnCooldown        Kind = "REWARD_ON_COOLDOWN"
	KindRewardLimitReached      Kind = "REWARD_LIMIT_REACHED"
	KindNotFound                Kind = "NOT_FOUND"
	KindForbidden               Kind = "FORBIDDEN"
	KindStorageError            Kind = "STORAGE_ERROR"
	KindBalanceDrift            Kind = "BALANCE_DRIFT"
)

// Error carries a stable kind plus a human-readable message.
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

func (e *Error) Unwrap() error { return e.Err }

// errf builds a guard-violation error.
func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// storage wraps an underlying persistence failure. The whole operation is
// aborted; nothing partial is committed.
func storage(err error, context string) *Error {
	return &Error{Kind: KindStorageError, Message: context, Err: err}
}

// IsKind reports whether err is an engine Error of the given kind, unwrapping
// as needed.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the error's kind, or StorageError for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageError
}
