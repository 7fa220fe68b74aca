package util

import (
	"errors"
	"fmt"
)

// MigrationError standardizes engine errors.
type MigrationError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *MigrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError constructs a MigrationError.
func NewMigrationError(code, message string, details map[string]any) *MigrationError {
	return &MigrationError{Code: code, Message: message, Details: details}
}

// NewTransientExhausted marks a call that ran out of retries.
func NewTransientExhausted(operation string, err error) error {
	return &MigrationError{
		Code:    "TRANSIENT_EXHAUSTED",
		Message: fmt.Sprintf("ran out of retries for %s", operation),
		Err:     err,
	}
}

// NewPermanentCall marks a call failure that must not be retried.
func NewPermanentCall(operation string, err error, details map[string]any) error {
	return &MigrationError{
		Code:    "PERMANENT_CALL",
		Message: fmt.Sprintf("permanent failure for %s", operation),
		Details: details,
		Err:     err,
	}
}

// NewUnresolvedReference marks a cross-system lookup that found no destination record.
func NewUnresolvedReference(kind string, sourceID any) error {
	return &MigrationError{
		Code:    "UNRESOLVED_REFERENCE",
		Message: fmt.Sprintf("could not resolve %s for source id %v", kind, sourceID),
		Details: map[string]any{"source_id": sourceID},
	}
}

// NewVerificationFailed marks a fatal post-run count query failure.
func NewVerificationFailed(query string, err error) error {
	return &MigrationError{
		Code:    "VERIFICATION_FAILED",
		Message: fmt.Sprintf("verification query %q failed", query),
		Err:     err,
	}
}

// IsTransientExhausted reports whether err is a retries-exhausted failure.
func IsTransientExhausted(err error) bool {
	return hasCode(err, "TRANSIENT_EXHAUSTED")
}

// IsUnresolvedReference reports whether err is a missing cross-reference.
func IsUnresolvedReference(err error) bool {
	return hasCode(err, "UNRESOLVED_REFERENCE")
}

func hasCode(err error, code string) bool {
	var merr *MigrationError
	if errors.As(err, &merr) {
		return merr.Code == code
	}
	return false
}
