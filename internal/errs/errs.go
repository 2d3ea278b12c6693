// Package errs defines the error taxonomy shared by the core components.
// Handlers translate these into HTTP status codes at the boundary.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports a required field that is missing, empty, or out
// of its allowed range. No state mutation occurs when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for the given field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports an alert state-machine move not permitted
// from the alert's current state. Idempotent callers should treat it as
// "already in desired state" rather than retry.
type InvalidTransitionError struct {
	AlertID string
	From    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("alert %s: transition not allowed from state %s", e.AlertID, e.From)
}

// NotFoundError reports a referenced machine, alert, or log that does not
// exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NotFound builds a NotFoundError for the given entity kind and id.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ErrUpstreamUnavailable indicates the telemetry source cannot be reached
// and no cached state exists to serve instead.
var ErrUpstreamUnavailable = errors.New("telemetry source unavailable")

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
