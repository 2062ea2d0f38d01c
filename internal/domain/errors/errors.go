package errors

import (
	"net/http"

	"huddle/internal/errors"
)

// AppError defines the interface for application-specific errors
type AppError interface {
	error
	HTTPCode() int     // HTTP status code
	ErrorCode() string // Business error code
	Message() string   // User-friendly error message
	Details() string   // Detailed error information (optional)
}

// BaseError is a basic error structure that implements the AppError interface
type BaseError struct {
	httpCode  int
	errorCode string
	message   string
	details   string
}

// NewBaseError creates a new base error
func NewBaseError(httpCode int, errorCode, message, details string) *BaseError {
	return &BaseError{
		httpCode:  httpCode,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.details != "" {
		return e.message + ": " + e.details
	}

	return e.message
}

// Is matches any BaseError carrying the same business code, so that copies made by
// WithDetails still satisfy errors.Is against the predefined value.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}

	return t.errorCode == e.errorCode
}

// WrapMessage wraps the error with additional context message
func (e *BaseError) WrapMessage(message string) error {
	return errors.Wrap(e, message)
}

// HTTPCode returns the HTTP status code
func (e *BaseError) HTTPCode() int {
	return e.httpCode
}

// ErrorCode returns the business error code
func (e *BaseError) ErrorCode() string {
	return e.errorCode
}

// Message returns the user-friendly error message
func (e *BaseError) Message() string {
	return e.message
}

// Details returns detailed error information
func (e *BaseError) Details() string {
	return e.details
}

// WithDetails adds detailed error information
func (e *BaseError) WithDetails(details string) *BaseError {
	return &BaseError{
		httpCode:  e.httpCode,
		errorCode: e.errorCode,
		message:   e.message,
		details:   details,
	}
}

// Predefined error types
var (
	// Error taxonomy of the engine
	ErrValidation = NewBaseError(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"input validation failed",
		"",
	)

	ErrConcurrencyConflict = NewBaseError(
		http.StatusConflict,
		"CONCURRENCY_CONFLICT",
		"the resource was modified concurrently, please retry",
		"",
	)

	ErrExternalCollaborator = NewBaseError(
		http.StatusBadGateway,
		"EXTERNAL_COLLABORATOR_FAILED",
		"an external service failed",
		"",
	)

	ErrInvariantViolation = NewBaseError(
		http.StatusInternalServerError,
		"INVARIANT_VIOLATION",
		"internal consistency check failed",
		"",
	)

	// Request-related errors
	ErrRequestNotFound = NewBaseError(
		http.StatusNotFound,
		"REQUEST_NOT_FOUND",
		"request not found",
		"",
	)

	ErrActiveRequestExists = NewBaseError(
		http.StatusConflict,
		"ACTIVE_REQUEST_EXISTS",
		"the user already has an open request",
		"",
	)

	ErrInvalidTransition = NewBaseError(
		http.StatusConflict,
		"INVALID_TRANSITION",
		"the request cannot move to the requested state",
		"",
	)

	// Negotiation-related errors
	ErrProposalNotFound = NewBaseError(
		http.StatusNotFound,
		"PROPOSAL_NOT_FOUND",
		"proposal not found",
		"",
	)

	ErrProposalClosed = NewBaseError(
		http.StatusConflict,
		"PROPOSAL_CLOSED",
		"the proposal has already been answered or has expired",
		"",
	)

	// Group-related errors
	ErrGroupNotFound = NewBaseError(
		http.StatusNotFound,
		"GROUP_NOT_FOUND",
		"group not found",
		"",
	)

	// Action link errors
	ErrActionTokenInvalid = NewBaseError(
		http.StatusUnauthorized,
		"ACTION_TOKEN_INVALID",
		"invalid or expired action link",
		"",
	)

	// Transaction-related errors
	ErrTransactionFailed = NewBaseError(
		http.StatusInternalServerError,
		"TRANSACTION_FAILED",
		"database transaction failed",
		"",
	)

	// General errors
	ErrInternalError = NewBaseError(
		http.StatusInternalServerError,
		"INTERNAL_ERROR",
		"internal server error",
		"",
	)

	ErrForbidden = NewBaseError(
		http.StatusForbidden,
		"FORBIDDEN",
		"access denied",
		"",
	)

	ErrNotFound = NewBaseError(
		http.StatusNotFound,
		"NOT_FOUND",
		"resource not found",
		"",
	)
)

// DatabaseExecuteError represents a database execution error, implementing the AppError interface
type DatabaseExecuteError struct {
	err     error
	details string
}

// NewDatabaseExecuteError creates a database-related error
func NewDatabaseExecuteError(err error, details string) AppError {
	return &DatabaseExecuteError{
		err:     err,
		details: details,
	}
}

// Error implements the error interface
func (e *DatabaseExecuteError) Error() string {
	return errors.Wrap(e.err, "database execution failed").Error()
}

// Unwrap exposes the driver error.
func (e *DatabaseExecuteError) Unwrap() error {
	return e.err
}

// HTTPCode returns the HTTP status code
func (e *DatabaseExecuteError) HTTPCode() int {
	return http.StatusInternalServerError
}

// ErrorCode returns the business error code
func (e *DatabaseExecuteError) ErrorCode() string {
	return "DATABASE_EXECUTE_FAILED"
}

// Message returns the user-friendly error message
func (e *DatabaseExecuteError) Message() string {
	return "database execution failed"
}

// Details returns detailed error information
func (e *DatabaseExecuteError) Details() string {
	return e.details
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict reports whether err is a lost optimistic-concurrency race.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsExternal reports whether err comes from an external collaborator.
func IsExternal(err error) bool {
	return errors.Is(err, ErrExternalCollaborator)
}

// IsInvariantViolation reports whether err signals a broken internal invariant.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
