package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeTransient indicates a recoverable backend fault
	// (network, timeout, rate limit) that is eligible for retry
	ErrorTypeTransient ErrorType = "TRANSIENT"

	// ErrorTypePermanent indicates a backend fault that retrying
	// cannot fix (bad request, auth)
	ErrorTypePermanent ErrorType = "PERMANENT"

	// ErrorTypeCircuitOpen indicates a call was rejected without being
	// attempted because the backend's circuit breaker is open
	ErrorTypeCircuitOpen ErrorType = "CIRCUIT_OPEN"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from an external service
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewTransientError wraps a retryable backend fault
func NewTransientError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError wraps a backend fault that must not be retried
func NewPermanentError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypePermanent,
		Message: message,
		Err:     err,
	}
}

// NewCircuitOpenError creates an error for calls rejected by an open breaker
func NewCircuitOpenError(backend string) *AppError {
	return &AppError{
		Type:    ErrorTypeCircuitOpen,
		Message: fmt.Sprintf("circuit breaker open for backend %q", backend),
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal for
// errors that did not originate from this package.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsRetryable reports whether err may succeed on a later attempt.
// Permanent faults, validation failures and open-breaker rejections are
// final; everything else (transient, external, unknown) is worth retrying.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypePermanent, ErrorTypeValidation, ErrorTypeCircuitOpen, ErrorTypeNotFound:
		return false
	default:
		return true
	}
}

// IsCircuitOpen reports whether err is an open-breaker rejection.
func IsCircuitOpen(err error) bool {
	return TypeOf(err) == ErrorTypeCircuitOpen
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}
