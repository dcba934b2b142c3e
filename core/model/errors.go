package model

import (
	"errors"
	"fmt"
)

// Domain outcomes. None of them is retried by the core: they describe the
// current state, so only a different request or a changed world helps.
var (
	ErrNotFound            = errors.New("not found")
	ErrIllegalTransition   = errors.New("illegal transition")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrAlreadyResolved     = errors.New("already resolved")
	ErrInvalidInput        = errors.New("invalid input")
)

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Kind EntityKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError reports a refused state change.
type TransitionError struct {
	Kind   EntityKind
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: illegal transition %s -> %s", e.Kind, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// UnavailableError reports a vehicle or driver that failed admission control.
type UnavailableError struct {
	Kind   EntityKind
	ID     string
	Status string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s %q unavailable (status %s)", e.Kind, e.ID, e.Status)
}

func (e *UnavailableError) Unwrap() error { return ErrResourceUnavailable }

// ResolvedError reports a request that was already approved or rejected.
type ResolvedError struct {
	ID     string
	Status RequestStatus
}

func (e *ResolvedError) Error() string {
	return fmt.Sprintf("request %q already %s", e.ID, e.Status)
}

func (e *ResolvedError) Unwrap() error { return ErrAlreadyResolved }

// InvalidInput wraps a malformed command argument.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
