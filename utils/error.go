package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a settlement operation can surface.
// The four classes demand different user actions, so they must never be
// collapsed into a generic error:
//
//   - VALIDATION: fixed by user input, never auto-retried.
//   - TRANSIENT: safe to retry the same operation from scratch.
//   - STALE_STATE: reload the summary before retrying; the targeted items
//     changed server-side.
//   - POST_AUTHORIZATION: the gateway moved money but verify did not
//     confirm settlement. Retried via verify only, with the original
//     payload; never via a fresh prepare.
type ErrorKind string

const (
	ErrorKindValidation        ErrorKind = "VALIDATION"
	ErrorKindTransient         ErrorKind = "TRANSIENT"
	ErrorKindStaleState        ErrorKind = "STALE_STATE"
	ErrorKindPostAuthorization ErrorKind = "POST_AUTHORIZATION"
)

type SettlementError struct {
	Kind    ErrorKind
	Message string

	// OutcomeUnknown is set when a mutation was aborted mid-flight (timeout,
	// cancelled context) and the server may or may not have applied it. The
	// caller must re-fetch the summary to learn the truth instead of
	// assuming failure.
	OutcomeUnknown bool

	// OrderId is set for POST_AUTHORIZATION errors so the payload needed to
	// retry verify can be located.
	OrderId string

	Err error
}

func (e *SettlementError) Error() string {
	if e.Message != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *SettlementError) Unwrap() error { return e.Err }

func NewValidationError(message string) error {
	return &SettlementError{Kind: ErrorKindValidation, Message: message}
}

func NewTransientError(message string, err error, outcomeUnknown bool) error {
	return &SettlementError{Kind: ErrorKindTransient, Message: message, Err: err, OutcomeUnknown: outcomeUnknown}
}

func NewStaleStateError(message string) error {
	return &SettlementError{Kind: ErrorKindStaleState, Message: message}
}

func NewPostAuthorizationError(orderId string, err error) error {
	return &SettlementError{
		Kind:    ErrorKindPostAuthorization,
		Message: "payment captured but not confirmed settled",
		OrderId: orderId,
		Err:     err,
	}
}

// KindOf returns the classification of err, defaulting unknown errors to
// TRANSIENT (the safe class: user-retryable, no local state assumed).
func KindOf(err error) ErrorKind {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrorKindTransient
}

func IsValidation(err error) bool        { return KindOf(err) == ErrorKindValidation }
func IsTransient(err error) bool         { return KindOf(err) == ErrorKindTransient }
func IsStaleState(err error) bool        { return KindOf(err) == ErrorKindStaleState }
func IsPostAuthorization(err error) bool { return KindOf(err) == ErrorKindPostAuthorization }

// IsOutcomeUnknown reports whether err represents an aborted mutation whose
// server-side effect is unknown.
func IsOutcomeUnknown(err error) bool {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.OutcomeUnknown
	}
	return false
}
