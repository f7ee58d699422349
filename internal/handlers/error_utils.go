package handlers

import (
	"errors"
	"net/http"

	contextutils "issuetracker/internal/utils"

	"github.com/gin-gonic/gin"
)

// StandardizeHTTPError creates consistent HTTP error responses with structured error information
func StandardizeHTTPError(c *gin.Context, statusCode int, message, details string) {
	var errorCode contextutils.ErrorCode
	var severity contextutils.SeverityLevel

	switch statusCode {
	case http.StatusBadRequest:
		errorCode = contextutils.ErrorCodeInvalidInput
		severity = contextutils.SeverityWarn
	case http.StatusUnauthorized:
		errorCode = contextutils.ErrorCodeUnauthorized
		severity = contextutils.SeverityWarn
	case http.StatusForbidden:
		errorCode = contextutils.ErrorCodeForbidden
		severity = contextutils.SeverityWarn
	case http.StatusNotFound:
		errorCode = contextutils.ErrorCodeRecordNotFound
		severity = contextutils.SeverityInfo
	case http.StatusConflict:
		errorCode = contextutils.ErrorCodeConflict
		severity = contextutils.SeverityInfo
	case http.StatusServiceUnavailable:
		errorCode = contextutils.ErrorCodeServiceUnavailable
		severity = contextutils.SeverityError
	default:
		errorCode = contextutils.ErrorCodeInternalError
		severity = contextutils.SeverityError
	}

	appErr := contextutils.NewAppError(errorCode, severity, message, details)
	_ = c.Error(appErr)
	c.JSON(statusCode, appErr.ToJSON())
}

// StandardizeAppError sends a structured error response using AppError
func StandardizeAppError(c *gin.Context, err *contextutils.AppError) {
	_ = c.Error(err)
	c.JSON(mapErrorCodeToHTTPStatus(err.Code), err.ToJSON())
}

// HandleAppError handles any AppError and sends appropriate HTTP response.
// Client errors are reported with the message of the innermost AppError of
// the same code, so service wrap context never reaches the caller. The
// package sentinels are never descended into.
func HandleAppError(c *gin.Context, err error) {
	var appErr *contextutils.AppError
	if !errors.As(err, &appErr) {
		StandardizeHTTPError(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	if mapErrorCodeToHTTPStatus(appErr.Code) < http.StatusInternalServerError {
		for {
			var inner *contextutils.AppError
			if appErr.Cause == nil || !errors.As(appErr.Cause, &inner) || inner.Code != appErr.Code || contextutils.IsSentinel(inner) {
				break
			}
			appErr = inner
		}
	}
	StandardizeAppError(c, appErr)
}

// bindJSON binds the request body, answering 400 when it does not decode
func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		invalidBody(c, err)
		return false
	}
	return true
}

// invalidBody answers a request whose JSON could not be bound
func invalidBody(c *gin.Context, err error) {
	HandleAppError(c, contextutils.NewAppErrorWithCause(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		"Invalid request body",
		"",
		err,
	))
}

// mapErrorCodeToHTTPStatus maps AppError codes to appropriate HTTP status codes
func mapErrorCodeToHTTPStatus(code contextutils.ErrorCode) int {
	switch code {
	case contextutils.ErrorCodeInvalidInput, contextutils.ErrorCodeValidationFailed,
		contextutils.ErrorCodeInvalidState:
		return http.StatusBadRequest

	case contextutils.ErrorCodeUnauthorized, contextutils.ErrorCodeInvalidCredentials:
		return http.StatusUnauthorized

	case contextutils.ErrorCodeForbidden:
		return http.StatusForbidden

	case contextutils.ErrorCodeRecordNotFound:
		return http.StatusNotFound

	case contextutils.ErrorCodeConflict:
		return http.StatusConflict

	case contextutils.ErrorCodeServiceUnavailable, contextutils.ErrorCodeDatabaseConnection:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
