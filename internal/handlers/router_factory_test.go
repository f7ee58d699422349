package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type routerMocks struct {
	users   *mockUserService
	issues  *mockIssueService
	catalog *mockCatalogService
}

func newTestRouter(t *testing.T) (*gin.Engine, routerMocks) {
	t.Helper()
	m := routerMocks{users: &mockUserService{}, issues: &mockIssueService{}, catalog: &mockCatalogService{}}
	svc := RouterServices{
		Users:         m.users,
		Catalog:       m.catalog,
		Issues:        m.issues,
		Comments:      &mockCommentService{},
		Attachments:   &mockAttachmentService{},
		Feedback:      &mockFeedbackService{},
		Notifications: &mockNotificationService{},
		Templates:     &mockTemplateService{},
		Knowledge:     &mockKnowledgeService{},
	}
	r := NewRouter(testConfig(), svc, testTokens(), observability.NewNopLogger())
	gin.SetMode(gin.TestMode)
	return r, m
}

// bearer signs a token for user and lets RequireAuth reload the same account
func bearer(t *testing.T, m routerMocks, req *http.Request, user *models.User) *http.Request {
	t.Helper()
	m.users.On("GetUserByID", mock.Anything, user.ID).Return(user, nil).Maybe()
	pair, err := testTokens().Issue(user)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	return req
}

func TestNewRouter_PublicRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"issuetracker"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/v1/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"issuetracker"`)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestNewRouter_RequiresAuthentication(t *testing.T) {
	r, m := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/issues", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/issues", nil)
	req.Header.Set("Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/issues", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	m.issues.AssertNotCalled(t, "ListIssues", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNewRouter_BearerActor(t *testing.T) {
	r, m := newTestRouter(t)
	m.issues.On("ListIssues", mock.Anything, student, services.IssueFilter{}, services.PageRequest{Page: 1, PageSize: 20}).
		Return([]models.IssueSummary{}, 0, nil)

	req := bearer(t, m, httptest.NewRequest(http.MethodGet, "/v1/issues", nil), activeStudent())
	w := serve(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp["results"])
	m.issues.AssertExpectations(t)
}

func TestNewRouter_RoleGates(t *testing.T) {
	r, m := newTestRouter(t)

	req := bearer(t, m, jsonRequest(http.MethodPost, "/v1/courses", `{"name":"Go","duration_in_weeks":4}`), activeStudent())
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	req = bearer(t, m, httptest.NewRequest(http.MethodGet, "/v1/users", nil), activeStudent())
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	req = bearer(t, m, httptest.NewRequest(http.MethodDelete, "/v1/issues/7", nil), &models.User{ID: mentor.ID, Username: "mia", Role: models.RoleMentor, IsActive: true})
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	m.catalog.AssertNotCalled(t, "CreateCourse", mock.Anything, mock.Anything)
}

func TestNewRouter_BearerForDeactivatedAccount(t *testing.T) {
	r, m := newTestRouter(t)
	pair, err := testTokens().Issue(&models.User{ID: mentor.ID, Username: "mia", Role: models.RoleMentor})
	require.NoError(t, err)
	m.users.On("GetUserByID", mock.Anything, mentor.ID).
		Return(&models.User{ID: mentor.ID, Username: "mia", Role: models.RoleStudent, IsActive: false}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/issues", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	m.users.AssertExpectations(t)
	m.issues.AssertNotCalled(t, "ListIssues", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNewRouter_SchemaValidation(t *testing.T) {
	r, m := newTestRouter(t)

	w := serve(r, jsonRequest(http.MethodPost, "/v1/auth/login", `{"username":"sam"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"details":"password"`)

	req := bearer(t, m, jsonRequest(http.MethodPost, "/v1/issues",
		`{"title":"t","description":"d","category":"checker_error","urgency":"urgent","week_number":1,"course":1,"project":1}`), activeStudent())
	w = serve(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	m.issues.AssertNotCalled(t, "CreateIssue", mock.Anything, mock.Anything, mock.Anything)
	m.users.AssertNotCalled(t, "AuthenticateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewRouter_AdminRouteListing(t *testing.T) {
	r, m := newTestRouter(t)

	req := bearer(t, m, httptest.NewRequest(http.MethodGet, "/v1/admin/routes", nil), &models.User{ID: admin.ID, Username: "root", Role: models.RoleAdmin, IsActive: true})
	w := serve(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Service string         `json:"service"`
		Total   int            `json:"total"`
		Methods map[string]int `json:"methods"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ServiceName, resp.Service)
	assert.Greater(t, resp.Total, 50)
	assert.Greater(t, resp.Methods["GET"], 20)
}
