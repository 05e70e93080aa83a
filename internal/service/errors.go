package service

import (
	"errors"
	"fmt"
)

// Error codes returned by registration operations.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyRegistered   = "ALREADY_REGISTERED"
	ErrCodeOutsideServiceArea  = "OUTSIDE_SERVICE_AREA"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeDetectionUnavail    = "DETECTION_UNAVAILABLE"
	ErrCodeAllocationFailed    = "ALLOCATION_FAILED"
	ErrCodePersistenceConflict = "PERSISTENCE_CONFLICT"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeUnsupportedFile     = "UNSUPPORTED_FILE_TYPE"
	ErrCodeFileTooLarge        = "FILE_TOO_LARGE"
	ErrCodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
)

// RegistrationError represents a registry failure with the details a client
// needs to react: which field was wrong, and whether resubmitting may succeed.
type RegistrationError struct {
	Code      string
	Field     string
	Message   string
	Retryable bool
	Err       error
}

func (e *RegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

func validationError(field, message string) *RegistrationError {
	return &RegistrationError{Code: ErrCodeValidation, Field: field, Message: message}
}

func notFoundError(message string) *RegistrationError {
	return &RegistrationError{Code: ErrCodeNotFound, Message: message}
}

func transitionError(message string) *RegistrationError {
	return &RegistrationError{Code: ErrCodeInvalidTransition, Message: message}
}

func allocationFailed(err error) *RegistrationError {
	return &RegistrationError{
		Code:      ErrCodeAllocationFailed,
		Message:   "Community ID could not be allocated, please resubmit",
		Retryable: true,
		Err:       err,
	}
}

func persistenceConflict(err error) *RegistrationError {
	return &RegistrationError{
		Code:      ErrCodePersistenceConflict,
		Message:   "Registration could not be saved, please resubmit",
		Retryable: true,
		Err:       err,
	}
}

func storeUnavailable(err error) *RegistrationError {
	return &RegistrationError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "Registry is temporarily unavailable, please try again",
		Retryable: true,
		Err:       err,
	}
}

// ErrorCode extracts the RegistrationError code from err, or "" if none.
func ErrorCode(err error) string {
	var re *RegistrationError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
