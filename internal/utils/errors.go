// Package contextutils provides the structured error taxonomy and small
// request-context helpers shared by every layer of the issue tracker.
package contextutils

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is the stable, machine readable code carried in API error bodies.
type ErrorCode string

const (
	// ErrorCodeValidationFailed indicates malformed or out-of-range input
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeInvalidInput indicates a request that could not be parsed
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeForbidden indicates a role or ownership rule was violated
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrorCodeRecordNotFound indicates a referenced entity is absent
	ErrorCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	// ErrorCodeConflict indicates a duplicate of a singular record
	ErrorCodeConflict ErrorCode = "CONFLICT"
	// ErrorCodeInvalidState indicates the entity is not in a state that allows the operation
	ErrorCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrorCodeUnauthorized indicates no authenticated actor
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeInvalidCredentials indicates a bad username/password pair or token
	ErrorCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"

	// ErrorCodeDatabaseConnection indicates the database could not be reached
	ErrorCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_ERROR"
	// ErrorCodeDatabaseQuery indicates a failed query
	ErrorCodeDatabaseQuery ErrorCode = "DATABASE_QUERY_ERROR"
	// ErrorCodeDatabaseTransaction indicates a failed begin/commit/rollback
	ErrorCodeDatabaseTransaction ErrorCode = "DATABASE_TRANSACTION_ERROR"
	// ErrorCodeServiceUnavailable indicates a dependency is temporarily unavailable
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeInternalError indicates an unexpected failure
	ErrorCodeInternalError ErrorCode = "INTERNAL_SERVER_ERROR"
)

// SeverityLevel represents the severity of an error for logging and monitoring
type SeverityLevel string

const (
	SeverityDebug SeverityLevel = "debug"
	SeverityInfo  SeverityLevel = "info"
	SeverityWarn  SeverityLevel = "warn"
	SeverityError SeverityLevel = "error"
	SeverityFatal SeverityLevel = "fatal"
)

// AppError represents a structured error with code, severity, and context
type AppError struct {
	Code     ErrorCode
	Severity SeverityLevel
	Message  string
	Details  string
	Cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Code == appErr.Code
	}
	return false
}

var (
	ErrValidationFailed = &AppError{
		Code:     ErrorCodeValidationFailed,
		Severity: SeverityWarn,
		Message:  "Validation failed",
	}

	ErrInvalidInput = &AppError{
		Code:     ErrorCodeInvalidInput,
		Severity: SeverityWarn,
		Message:  "Invalid input",
	}

	ErrForbidden = &AppError{
		Code:     ErrorCodeForbidden,
		Severity: SeverityWarn,
		Message:  "You do not have permission to perform this action",
	}

	ErrRecordNotFound = &AppError{
		Code:     ErrorCodeRecordNotFound,
		Severity: SeverityInfo,
		Message:  "Record not found",
	}

	ErrConflict = &AppError{
		Code:     ErrorCodeConflict,
		Severity: SeverityWarn,
		Message:  "Record already exists",
	}

	ErrInvalidState = &AppError{
		Code:     ErrorCodeInvalidState,
		Severity: SeverityWarn,
		Message:  "Operation not allowed in the current state",
	}

	ErrUnauthorized = &AppError{
		Code:     ErrorCodeUnauthorized,
		Severity: SeverityWarn,
		Message:  "Authentication credentials were not provided",
	}

	ErrInvalidCredentials = &AppError{
		Code:     ErrorCodeInvalidCredentials,
		Severity: SeverityWarn,
		Message:  "Invalid credentials",
	}

	ErrDatabaseConnection = &AppError{
		Code:     ErrorCodeDatabaseConnection,
		Severity: SeverityError,
		Message:  "Database connection failed",
	}

	ErrDatabaseQuery = &AppError{
		Code:     ErrorCodeDatabaseQuery,
		Severity: SeverityError,
		Message:  "Database query failed",
	}

	ErrDatabaseTransaction = &AppError{
		Code:     ErrorCodeDatabaseTransaction,
		Severity: SeverityError,
		Message:  "Database transaction failed",
	}

	ErrServiceUnavailable = &AppError{
		Code:     ErrorCodeServiceUnavailable,
		Severity: SeverityError,
		Message:  "Service unavailable",
	}

	ErrInternalError = &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  "Internal server error",
	}
)

// IsSentinel reports whether e is one of the package level Err* values
func IsSentinel(e *AppError) bool {
	switch e {
	case ErrValidationFailed, ErrInvalidInput, ErrForbidden, ErrRecordNotFound, ErrConflict,
		ErrInvalidState, ErrUnauthorized, ErrInvalidCredentials, ErrDatabaseConnection,
		ErrDatabaseQuery, ErrDatabaseTransaction, ErrServiceUnavailable, ErrInternalError:
		return true
	}
	return false
}

// NewAppError creates a new AppError with the specified code, severity, message and details
func NewAppError(code ErrorCode, severity SeverityLevel, message, details string) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
	}
}

// NewAppErrorWithCause creates a new AppError with an underlying cause
func NewAppErrorWithCause(code ErrorCode, severity SeverityLevel, message, details string, cause error) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// Validationf builds a VALIDATION_FAILED error whose details name the offending field.
func Validationf(field, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:     ErrorCodeValidationFailed,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf(format, args...),
		Details:  field,
		Cause:    ErrValidationFailed,
	}
}

// Forbiddenf builds a FORBIDDEN error with a specific message.
func Forbiddenf(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:     ErrorCodeForbidden,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf(format, args...),
		Cause:    ErrForbidden,
	}
}

// NotFoundf builds a RECORD_NOT_FOUND error with a specific message.
func NotFoundf(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:     ErrorCodeRecordNotFound,
		Severity: SeverityInfo,
		Message:  fmt.Sprintf(format, args...),
		Cause:    ErrRecordNotFound,
	}
}

// Conflictf builds a CONFLICT error with a specific message.
func Conflictf(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:     ErrorCodeConflict,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf(format, args...),
		Cause:    ErrConflict,
	}
}

// InvalidStatef builds an INVALID_STATE error with a specific message.
func InvalidStatef(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:     ErrorCodeInvalidState,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf(format, args...),
		Cause:    ErrInvalidState,
	}
}

// WrapError wraps an error with additional context, preserving AppError structure if possible
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  appErr.Error(),
			Cause:    err,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// WrapErrorf wraps an error with formatted context, preserving AppError structure if possible.
// err is always the cause, so format never needs a %w verb.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	cause := err
	message := fmt.Sprintf(format, args...)

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  message,
			Details:  appErr.Error(),
			Cause:    cause,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  message,
		Details:  err.Error(),
		Cause:    cause,
	}
}

// ErrorWithContextf creates a new internal error with formatted context
func ErrorWithContextf(format string, args ...interface{}) error {
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsError checks if an error, or anything it wraps, carries target's code
func IsError(err error, target *AppError) bool {
	return errors.Is(err, target)
}

// AsError extracts the outermost AppError from err
func AsError(err error, target **AppError) bool {
	return errors.As(err, target)
}

// GetErrorCode returns the code of the outermost AppError, or INTERNAL_SERVER_ERROR
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrorCodeInternalError
}

// GetErrorSeverity returns the severity of the outermost AppError, or error
func GetErrorSeverity(err error) SeverityLevel {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Severity
	}
	return SeverityError
}

// IsRetryable reports whether an error is a transient infrastructure fault.
// Every domain rejection (validation, access, state, conflict) is final.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case ErrorCodeServiceUnavailable, ErrorCodeDatabaseConnection:
			return appErr.Severity != SeverityFatal
		}
	}
	return false
}

// ToJSON converts an AppError to a JSON-serializable structure for API responses
func (e *AppError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":      string(e.Code),
		"message":   e.Message,
		"severity":  string(e.Severity),
		"error":     e.Message,
		"retryable": IsRetryable(e),
	}

	if e.Details != "" {
		result["details"] = e.Details
	}

	if e.Cause != nil {
		switch e.Severity {
		case SeverityError, SeverityFatal:
			result["cause"] = e.Cause.Error()
		}
	}

	return result
}

// ContextKey represents a context key type for passing values through context
type ContextKey string

const (
	// UserIDKey stores the authenticated user's ID
	UserIDKey ContextKey = "userID"
	// RequestIDKey stores the inbound request id when one is present
	RequestIDKey ContextKey = "requestID"
)

// GetUserIDFromContext extracts the user ID from context, returning 0 if not found
func GetUserIDFromContext(ctx context.Context) int64 {
	if userID, ok := ctx.Value(UserIDKey).(int64); ok {
		return userID
	}
	return 0
}

// WithUserID returns a new context with the user ID set
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestIDFromContext extracts the request id, returning "" if not found
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID returns a new context with the request id set
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
