package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorRecoveryMiddleware turns a panic in a handler into a 500 AppError
// response and logs the stack
func ErrorRecoveryMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			stackTrace := string(debug.Stack())

			panicErr, ok := recovered.(error)
			if !ok {
				panicErr = fmt.Errorf("panic: %v", recovered)
			}
			logger.Error(c.Request.Context(), "Panic recovered", panicErr, map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"stack":  stackTrace,
			})

			appErr := contextutils.NewAppErrorWithCause(
				contextutils.ErrorCodeInternalError,
				contextutils.SeverityFatal,
				"Internal server error",
				"A panic occurred while processing the request",
				panicErr,
			)
			if gin.Mode() == gin.DebugMode {
				appErr.Details = fmt.Sprintf("%s\nStack trace: %s", appErr.Details, stackTrace)
			}

			_ = c.Error(appErr)
			c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToJSON())
		}()

		c.Next()
	}
}

// RequestLogger logs one line per request once the handler chain is done.
// 5xx responses log at error. A 4xx logs at warn unless the AppError behind
// it is only informational, like a missing record.
func RequestLogger(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if userID, ok := c.Get(UserIDKey); ok {
			fields["user_id"] = userID
		}

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
			fields["error_code"] = string(contextutils.GetErrorCode(err))
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "Request failed", err, fields)
		case status >= http.StatusBadRequest:
			switch {
			case err != nil && isInformational(contextutils.GetErrorSeverity(err)):
				logger.Info(ctx, "Request rejected", fields)
			default:
				logger.Warn(ctx, "Request rejected", fields)
			}
		default:
			logger.Info(ctx, "Request handled", fields)
		}
	}
}

func isInformational(severity contextutils.SeverityLevel) bool {
	return severity == contextutils.SeverityInfo || severity == contextutils.SeverityDebug
}
