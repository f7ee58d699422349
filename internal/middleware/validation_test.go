package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustLoadEmbeddedSchemas(t *testing.T) {
	sl := MustLoadEmbeddedSchemas()
	for _, name := range []string{
		"login", "refresh", "register", "user_update", "password_change",
		"issue_create", "issue_update", "comment", "feedback",
		"template", "article", "course", "project", "task",
	} {
		assert.True(t, sl.Has(name), name)
	}
}

func TestLoadSchemas_BrokenSchema(t *testing.T) {
	fsys := fstest.MapFS{"s/bad.json": {Data: []byte(`{"type": 12}`)}}
	err := NewSchemaLoader().LoadSchemas(fsys, "s")
	require.Error(t, err)
}

func TestValidateBytes(t *testing.T) {
	sl := MustLoadEmbeddedSchemas()

	tests := []struct {
		name    string
		schema  string
		body    string
		details string
	}{
		{"valid update", "issue_update", `{"status": "resolved", "assigned_to": null}`, ""},
		{"bad status", "issue_update", `{"status": "closed"}`, "status"},
		{"missing content", "comment", `{}`, "content"},
		{"rating not integer", "feedback", `{"rating": "five"}`, "rating"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sl.ValidateBytes([]byte(tt.body), tt.schema)
			if tt.details == "" {
				assert.NoError(t, err)
				return
			}
			var appErr *contextutils.AppError
			require.True(t, contextutils.AsError(err, &appErr))
			assert.Equal(t, contextutils.ErrorCodeValidationFailed, appErr.Code)
			assert.Equal(t, tt.details, appErr.Details)
		})
	}
}

func TestValidateJSONBody_RestoresBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sl := MustLoadEmbeddedSchemas()

	router := gin.New()
	router.POST("/comments", ValidateJSONBody(sl, "comment", observability.NewNopLogger()), func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})

	t.Run("valid body reaches handler", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/comments", strings.NewReader(`{"content":"hi"}`)))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `{"content":"hi"}`, w.Body.String())
	})

	t.Run("invalid body is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/comments", strings.NewReader(`{"content": 5}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "content", decode(t, w)["details"])
	})

	t.Run("malformed json", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/comments", strings.NewReader(`{"content":`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_INPUT", decode(t, w)["code"])
	})
}

func TestValidateJSONBody_UnknownSchemaPanics(t *testing.T) {
	assert.Panics(t, func() {
		ValidateJSONBody(MustLoadEmbeddedSchemas(), "nope", observability.NewNopLogger())
	})
}
