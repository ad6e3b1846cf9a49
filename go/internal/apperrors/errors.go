// Package apperrors holds the typed errors shared by the session engine and its
// RPC surface. Every error wraps its cause so errors.Is/As keep working through
// fmt.Errorf("...: %w") chains.
package apperrors

import (
	"errors"
	"fmt"
)

// Reason classifies a rejected answer or command argument.
type Reason string

const (
	ReasonNotActive      Reason = "not_active"
	ReasonStaleQuestion  Reason = "stale_question"
	ReasonQuestionClosed Reason = "question_closed"
	ReasonUnknownOption  Reason = "unknown_option"
	ReasonUnknownPlayer  Reason = "unknown_player"
	ReasonUnknownSession Reason = "unknown_session"
	ReasonDuplicate      Reason = "duplicate"
	ReasonInvalid        Reason = "invalid_argument"
)

// ValidationError rejects an input before any state is mutated.
type ValidationError struct {
	Reason Reason
	Msg    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Msg)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(reason Reason, format string, args ...interface{}) error {
	return &ValidationError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// StateError rejects an illegal session transition. Session state is unchanged.
type StateError struct {
	From string
	Op   string
	Msg  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition %s from %s: %s", e.Op, e.From, e.Msg)
}

// NewStateError builds a StateError for op attempted while in state from.
func NewStateError(op, from, format string, args ...interface{}) error {
	return &StateError{Op: op, From: from, Msg: fmt.Sprintf(format, args...)}
}

// TransportError reports an unreachable collaborator (entity store, broker).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError. A nil err stays nil.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// NotFoundError reports a missing session, quiz or player.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// AuthorizationError reports that the caller may not drive the session.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Msg
}

// NewAuthorizationError builds an AuthorizationError.
func NewAuthorizationError(format string, args ...interface{}) error {
	return &AuthorizationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsState(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// ReasonOf returns the validation reason carried by err, or "" when err is not a
// ValidationError.
func ReasonOf(err error) Reason {
	var target *ValidationError
	if errors.As(err, &target) {
		return target.Reason
	}
	return ""
}
