package contextutils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error with details",
			appError: &AppError{
				Code:     ErrorCodeValidationFailed,
				Severity: SeverityWarn,
				Message:  "Rating must be between 1 and 5",
				Details:  "rating",
			},
			expected: "VALIDATION_FAILED: Rating must be between 1 and 5 - rating",
		},
		{
			name: "error without details",
			appError: &AppError{
				Code:     ErrorCodeRecordNotFound,
				Severity: SeverityInfo,
				Message:  "Record not found",
			},
			expected: "RECORD_NOT_FOUND: Record not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	err1 := &AppError{Code: ErrorCodeConflict}
	err2 := &AppError{Code: ErrorCodeConflict}
	err3 := &AppError{Code: ErrorCodeInvalidState}

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
	assert.False(t, err1.Is(errors.New("regular error")))
}

func TestConstructorsKeepTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(Validationf("rating", "Rating must be between %d and %d", 1, 5), ErrValidationFailed))
	assert.True(t, errors.Is(Forbiddenf("You can only attach files to your own issues."), ErrForbidden))
	assert.True(t, errors.Is(NotFoundf("Issue %d not found", 7), ErrRecordNotFound))

	v := Validationf("file", "File too large")
	assert.Equal(t, "file", v.Details)
	assert.Equal(t, SeverityWarn, v.Severity)
}

func TestWrapError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, WrapError(nil, "ctx"))
	})

	t.Run("app error keeps code", func(t *testing.T) {
		wrapped := WrapError(ErrInvalidState, "create feedback")
		assert.Equal(t, ErrorCodeInvalidState, GetErrorCode(wrapped))
		assert.True(t, errors.Is(wrapped, ErrInvalidState))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		wrapped := WrapError(errors.New("boom"), "load issue")
		assert.Equal(t, ErrorCodeInternalError, GetErrorCode(wrapped))
		assert.Contains(t, wrapped.Error(), "boom")
	})

	t.Run("wrapping twice keeps the inner code", func(t *testing.T) {
		wrapped := WrapError(WrapError(ErrConflict, "inner"), "outer")
		assert.True(t, errors.Is(wrapped, ErrConflict))
	})
}

func TestWrapErrorf(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := WrapErrorf(base, "failed to load issue %d", 4)
	require.Error(t, wrapped)
	assert.True(t, errors.Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "failed to load issue 4")
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.NotContains(t, wrapped.Error(), "%!")

	kept := WrapErrorf(ErrRecordNotFound, "issue %d", 4)
	assert.Equal(t, ErrorCodeRecordNotFound, GetErrorCode(kept))
}

func TestErrorWithContextf(t *testing.T) {
	err := ErrorWithContextf("service %s not found", "issue")
	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(err))
	assert.Contains(t, err.Error(), "service issue not found")
}

func TestAsError(t *testing.T) {
	var target *AppError
	assert.True(t, AsError(fmt.Errorf("outer: %w", ErrForbidden), &target))
	assert.Equal(t, ErrorCodeForbidden, target.Code)
	assert.False(t, AsError(errors.New("plain"), &target))
}

func TestGetErrorSeverity(t *testing.T) {
	assert.Equal(t, SeverityInfo, GetErrorSeverity(ErrRecordNotFound))
	assert.Equal(t, SeverityError, GetErrorSeverity(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrDatabaseConnection))
	assert.True(t, IsRetryable(ErrServiceUnavailable))
	assert.False(t, IsRetryable(ErrConflict))
	assert.False(t, IsRetryable(ErrInvalidState))
	assert.False(t, IsRetryable(ErrValidationFailed))
	assert.False(t, IsRetryable(&AppError{Code: ErrorCodeDatabaseConnection, Severity: SeverityFatal}))
}

func TestAppError_ToJSON(t *testing.T) {
	err := NewAppErrorWithCause(ErrorCodeDatabaseQuery, SeverityError, "Database query failed", "issues", errors.New("syntax"))
	body := err.ToJSON()

	assert.Equal(t, "DATABASE_QUERY_ERROR", body["code"])
	assert.Equal(t, "Database query failed", body["message"])
	assert.Equal(t, "Database query failed", body["error"])
	assert.Equal(t, "issues", body["details"])
	assert.Equal(t, "syntax", body["cause"])
	assert.Equal(t, false, body["retryable"])

	warn := Forbiddenf("nope").ToJSON()
	_, hasCause := warn["cause"]
	assert.False(t, hasCause)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, int64(0), GetUserIDFromContext(ctx))
	ctx = WithUserID(ctx, 42)
	assert.Equal(t, int64(42), GetUserIDFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, IsSentinel(ErrRecordNotFound))
	assert.True(t, IsSentinel(ErrValidationFailed))
	assert.False(t, IsSentinel(NotFoundf("Issue not found.")))
	assert.False(t, IsSentinel(NewAppError(ErrorCodeConflict, SeverityWarn, "Record already exists", "")))
}
