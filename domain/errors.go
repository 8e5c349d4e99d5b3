package domain

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when an optimistic version check fails because another
// writer changed the row first.
var ErrConflict = errors.New("concurrent modification")

// ValidationError is a business-rule violation detected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError is an attempted state change not in the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// NotFoundError names a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(entity string, key any) error {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

// DownstreamUnavailableError wraps a failure to reach an external collaborator
// (AI scoring, profile or posting lookups).
type DownstreamUnavailableError struct {
	Service string
	Err     error
}

func (e *DownstreamUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *DownstreamUnavailableError) Unwrap() error { return e.Err }

// NewDownstreamError wraps err as unavailability of service.
func NewDownstreamError(service string, err error) error {
	return &DownstreamUnavailableError{Service: service, Err: err}
}

// DeliveryFailure is a broker publish failure for one outbox event.
type DeliveryFailure struct {
	EventID    uint
	RoutingKey string
	Err        error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("deliver event %d to %q: %v", e.EventID, e.RoutingKey, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is (or wraps) an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsDownstream reports whether err is (or wraps) a DownstreamUnavailableError.
func IsDownstream(err error) bool {
	var target *DownstreamUnavailableError
	return errors.As(err, &target)
}
