package middleware

import (
	"bytes"
	"io"
	"net/http"

	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ValidateJSONBody rejects a request whose body does not match the named
// schema. The body is restored so the handler can bind it.
func ValidateJSONBody(loader *SchemaLoader, schemaName string, logger *observability.Logger) gin.HandlerFunc {
	if !loader.Has(schemaName) {
		panic("unknown request schema: " + schemaName)
	}

	return func(c *gin.Context) {
		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "request_validation",
			attribute.String("schema.name", schemaName))
		defer span.End()

		body, err := c.GetRawData()
		if err != nil {
			appErr := contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
				"Failed to read request body.", "", err)
			_ = c.Error(appErr)
			c.AbortWithStatusJSON(http.StatusBadRequest, appErr.ToJSON())
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if len(bytes.TrimSpace(body)) == 0 {
			body = []byte("{}")
		}
		if err := loader.ValidateBytes(body, schemaName); err != nil {
			span.SetAttributes(attribute.Bool("schema.valid", false))
			logger.Warn(ctx, "Request validation failed", map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"schema": schemaName,
				"error":  err.Error(),
			})
			_ = c.Error(err)
			payload := map[string]interface{}{"error": err.Error()}
			if appErr, ok := err.(*contextutils.AppError); ok {
				payload = appErr.ToJSON()
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, payload)
			return
		}

		span.SetAttributes(attribute.Bool("schema.valid", true))
		c.Next()
	}
}
