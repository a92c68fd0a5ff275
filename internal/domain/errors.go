package domain

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates domain failures so callers can branch on the
// category instead of parsing messages.
type ErrorKind string

const (
	KindInvalidArgument     ErrorKind = "INVALID_ARGUMENT"
	KindInactiveOrder       ErrorKind = "INACTIVE_ORDER"
	KindNotCancellable      ErrorKind = "NOT_CANCELLABLE"
	KindNotModifiable       ErrorKind = "NOT_MODIFIABLE"
	KindOverFill            ErrorKind = "OVER_FILL"
	KindUnsupportedForType  ErrorKind = "UNSUPPORTED_FOR_ORDER_TYPE"
	KindDuplicatePosition   ErrorKind = "DUPLICATE_POSITION"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindInsufficientCash    ErrorKind = "INSUFFICIENT_CASH"
	KindPositionTooLarge    ErrorKind = "POSITION_TOO_LARGE"
	KindConcentration       ErrorKind = "CONCENTRATION_EXCEEDED"
	KindLeverageExceeded    ErrorKind = "LEVERAGE_EXCEEDED"
	KindVenueRejected       ErrorKind = "VENUE_REJECTED"
	KindPersistenceFailure  ErrorKind = "PERSISTENCE_FAILURE"
)

// DomainError is the error type returned by every fallible domain operation.
// Two DomainErrors match under errors.Is when their kinds are equal, so
// sentinel values like ErrOverFill work as comparison targets regardless of
// the message attached at the failure site.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports kind equality, making errors.Is(err, ErrOverFill) work.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return e.Kind == de.Kind
	}
	return false
}

// Errf builds a DomainError of the given kind with a formatted message.
func Errf(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinel targets for errors.Is checks.
var (
	ErrInvalidArgument    = &DomainError{Kind: KindInvalidArgument}
	ErrInactiveOrder      = &DomainError{Kind: KindInactiveOrder}
	ErrNotCancellable     = &DomainError{Kind: KindNotCancellable}
	ErrNotModifiable      = &DomainError{Kind: KindNotModifiable}
	ErrOverFill           = &DomainError{Kind: KindOverFill}
	ErrUnsupportedForType = &DomainError{Kind: KindUnsupportedForType}
	ErrDuplicatePosition  = &DomainError{Kind: KindDuplicatePosition}
	ErrNotFound           = &DomainError{Kind: KindNotFound}
	ErrInsufficientCash   = &DomainError{Kind: KindInsufficientCash}
	ErrPositionTooLarge   = &DomainError{Kind: KindPositionTooLarge}
	ErrConcentration      = &DomainError{Kind: KindConcentration}
	ErrLeverageExceeded   = &DomainError{Kind: KindLeverageExceeded}
	ErrVenueRejected      = &DomainError{Kind: KindVenueRejected}
	ErrPersistence        = &DomainError{Kind: KindPersistenceFailure}
)

// KindOf extracts the ErrorKind from err, or "" if err is not a DomainError.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
