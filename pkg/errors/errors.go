package errors

import (
	"errors"
	"fmt"
)

// Error codes for the progression engine.
const (
	// Activity intake errors
	ErrCodeValidationFailed        = "VALIDATION_FAILED"
	ErrCodeUnknownCatalogReference = "UNKNOWN_CATALOG_REFERENCE"

	// Persistence errors
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodePersistenceFailure  = "PERSISTENCE_FAILURE"
	ErrCodeProfileNotFound     = "PROFILE_NOT_FOUND"

	// Business-rule results
	ErrCodeAlreadyCompleted     = "ALREADY_COMPLETED"
	ErrCodeNotEligible          = "NOT_ELIGIBLE"
	ErrCodeCatalogMissing       = "CATALOG_MISSING"
	ErrCodeAlreadyParticipating = "ALREADY_PARTICIPATING"

	// Config errors
	ErrCodeConfigInvalid = "CONFIG_INVALID"
)

// EngineError represents an error raised by the progression engine.
type EngineError struct {
	Code    string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError.
func NewEngineError(code, message string, err error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrValidationFailed returns a validation error. Validation errors are raised
// before any state is mutated.
func ErrValidationFailed(field, reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeValidationFailed,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Err:     nil,
	}
}

// ErrUnknownCatalogReference returns an error for a catalog id or activity
// category that does not exist in the rule catalog.
func ErrUnknownCatalogReference(kind, id string) *EngineError {
	return &EngineError{
		Code:    ErrCodeUnknownCatalogReference,
		Message: fmt.Sprintf("unknown %s: %s", kind, id),
		Err:     nil,
	}
}

// ErrConcurrencyConflict returns an error when a profile update lost a race
// against another writer. The whole operation may be retried.
func ErrConcurrencyConflict(userID string, err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeConcurrencyConflict,
		Message: fmt.Sprintf("concurrent update of profile %s", userID),
		Err:     err,
	}
}

// ErrPersistenceFailure wraps storage errors.
func ErrPersistenceFailure(operation string, err error) *EngineError {
	return &EngineError{
		Code:    ErrCodePersistenceFailure,
		Message: fmt.Sprintf("persistence failure during %s", operation),
		Err:     err,
	}
}

// ErrProfileNotFound returns an error when a profile does not exist.
func ErrProfileNotFound(userID string) *EngineError {
	return &EngineError{
		Code:    ErrCodeProfileNotFound,
		Message: fmt.Sprintf("profile not found: %s", userID),
		Err:     nil,
	}
}

// ErrAlreadyCompleted returns an error when a one-shot reward was already granted.
func ErrAlreadyCompleted(kind, id string) *EngineError {
	return &EngineError{
		Code:    ErrCodeAlreadyCompleted,
		Message: fmt.Sprintf("%s already completed: %s", kind, id),
		Err:     nil,
	}
}

// ErrNotEligible returns an error when a user does not meet a requirement.
func ErrNotEligible(id, reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeNotEligible,
		Message: fmt.Sprintf("not eligible for %s: %s", id, reason),
		Err:     nil,
	}
}

// ErrCatalogMissing returns an error when a referenced catalog entry is absent.
func ErrCatalogMissing(kind, id string) *EngineError {
	return &EngineError{
		Code:    ErrCodeCatalogMissing,
		Message: fmt.Sprintf("%s not found in catalog: %s", kind, id),
		Err:     nil,
	}
}

// ErrAlreadyParticipating returns an error when a user joins an event twice.
func ErrAlreadyParticipating(eventID string) *EngineError {
	return &EngineError{
		Code:    ErrCodeAlreadyParticipating,
		Message: fmt.Sprintf("already participating in event: %s", eventID),
		Err:     nil,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeConfigInvalid,
		Message: fmt.Sprintf("invalid configuration: %s", reason),
		Err:     nil,
	}
}

// CodeOf returns the code of the first EngineError in err's chain, or "".
func CodeOf(err error) string {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsConcurrencyConflict reports whether err is a retryable lock or version conflict.
func IsConcurrencyConflict(err error) bool {
	return IsCode(err, ErrCodeConcurrencyConflict)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return IsCode(err, ErrCodeValidationFailed)
}

// IsPersistence reports whether err is a storage failure.
func IsPersistence(err error) bool {
	return IsCode(err, ErrCodePersistenceFailure)
}
