package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"issuetracker/internal/auth"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testTokens() *auth.TokenManager {
	return auth.NewTokenManager("handler-test-secret", "issuetracker-test", 15*time.Minute, 24*time.Hour)
}

func authRouter(h *AuthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("issuetracker-session", cookie.NewStore([]byte("test-session-secret"))))
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)
	r.POST("/v1/auth/logout", h.Logout)
	r.POST("/v1/auth/register", h.Register)
	return r
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func activeStudent() *models.User {
	return &models.User{ID: student.ID, Username: "sam", Role: models.RoleStudent, Cohort: student.Cohort, IsActive: true}
}

func TestAuthHandler_Login(t *testing.T) {
	users := &mockUserService{}
	tokens := testTokens()
	h := NewAuthHandler(users, tokens, observability.NewNopLogger())
	users.On("AuthenticateUser", mock.Anything, "sam", "s3cret-pass").Return(activeStudent(), nil)

	w := serve(authRouter(h), jsonRequest(http.MethodPost, "/v1/auth/login", `{"username":"sam","password":"s3cret-pass"}`))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Access  string                 `json:"access"`
		Refresh string                 `json:"refresh"`
		User    map[string]interface{} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := tokens.Parse(resp.Access, auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, student.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	_, err = tokens.Parse(resp.Refresh, auth.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "sam", resp.User["username"])
	assert.Contains(t, w.Header().Get("Set-Cookie"), "issuetracker-session=")
}

func TestAuthHandler_Login_Rejected(t *testing.T) {
	users := &mockUserService{}
	h := NewAuthHandler(users, testTokens(), observability.NewNopLogger())
	users.On("AuthenticateUser", mock.Anything, "sam", "wrong").Return(nil, contextutils.ErrInvalidCredentials)

	r := authRouter(h)
	w := serve(r, jsonRequest(http.MethodPost, "/v1/auth/login", `{"username":"sam","password":"wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Header().Get("Set-Cookie"))

	w = serve(r, jsonRequest(http.MethodPost, "/v1/auth/login", `{"username":"sam"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_Refresh(t *testing.T) {
	users := &mockUserService{}
	tokens := testTokens()
	h := NewAuthHandler(users, tokens, observability.NewNopLogger())
	pair, err := tokens.Issue(activeStudent())
	require.NoError(t, err)
	users.On("GetUserByID", mock.Anything, student.ID).Return(activeStudent(), nil)

	r := authRouter(h)
	w := serve(r, jsonRequest(http.MethodPost, "/v1/auth/refresh", `{"refresh":"`+pair.Refresh+`"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access":`)

	// an access token is not accepted where a refresh token is expected
	w = serve(r, jsonRequest(http.MethodPost, "/v1/auth/refresh", `{"refresh":"`+pair.Access+`"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token is invalid or expired")
}

func TestAuthHandler_Refresh_InactiveUser(t *testing.T) {
	users := &mockUserService{}
	tokens := testTokens()
	h := NewAuthHandler(users, tokens, observability.NewNopLogger())
	pair, err := tokens.Issue(activeStudent())
	require.NoError(t, err)
	inactive := activeStudent()
	inactive.IsActive = false
	users.On("GetUserByID", mock.Anything, student.ID).Return(inactive, nil)

	w := serve(authRouter(h), jsonRequest(http.MethodPost, "/v1/auth/refresh", `{"refresh":"`+pair.Refresh+`"}`))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	h := NewAuthHandler(&mockUserService{}, testTokens(), observability.NewNopLogger())

	w := serve(authRouter(h), httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Logout successful"}`, w.Body.String())
}

func TestAuthHandler_Register(t *testing.T) {
	users := &mockUserService{}
	h := NewAuthHandler(users, testTokens(), observability.NewNopLogger())
	users.On("CreateUser", mock.Anything, mock.MatchedBy(func(in services.CreateUserInput) bool {
		return in.Username == "newbie" && in.Role == models.RoleStudent
	})).Return(&models.User{ID: 30, Username: "newbie", Role: models.RoleStudent, IsActive: true}, nil)

	r := authRouter(h)
	w := serve(r, jsonRequest(http.MethodPost, "/v1/auth/register",
		`{"username":"newbie","password":"long-enough-pass","password_confirm":"long-enough-pass","cohort":"2024-spring"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"newbie"`)
	assert.NotContains(t, w.Body.String(), "password")

	w = serve(r, jsonRequest(http.MethodPost, "/v1/auth/register",
		`{"username":"x","password":"p","password_confirm":"p","role":"superuser"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"details":"role"`)
	users.AssertNumberOfCalls(t, "CreateUser", 1)
}
