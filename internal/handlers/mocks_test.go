package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"issuetracker/internal/config"
	"issuetracker/internal/middleware"
	"issuetracker/internal/models"
	"issuetracker/internal/services"
	"issuetracker/internal/tracker"
	"issuetracker/internal/visibility"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
)

var (
	student = visibility.Actor{ID: 10, Role: models.RoleStudent, Cohort: "2024-spring"}
	mentor  = visibility.Actor{ID: 20, Role: models.RoleMentor, Cohort: "2024-spring"}
	admin   = visibility.Actor{ID: 1, Role: models.RoleAdmin}
)

func testConfig() *config.Config {
	return &config.Config{
		Server:      config.ServerConfig{SessionSecret: "test-session-secret", PublicBaseURL: "https://tracker.example.com"},
		Attachments: config.AttachmentsConfig{MaxUploadSize: config.DefaultMaxUploadSize},
		Pagination:  config.PaginationConfig{DefaultPageSize: 20, MaxPageSize: 100},
	}
}

// actorRouter is a test engine that authenticates every request as actor
func actorRouter(actor visibility.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetActor(c, actor)
		c.Next()
	})
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type mockUserService struct{ mock.Mock }

func (m *mockUserService) CreateUser(ctx context.Context, in services.CreateUserInput) (*models.User, error) {
	args := m.Called(ctx, in)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	args := m.Called(ctx, username, password)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) ListUsers(ctx context.Context, filter services.UserFilter, page services.PageRequest) ([]models.User, int, error) {
	args := m.Called(ctx, filter, page)
	users, _ := args.Get(0).([]models.User)
	return users, args.Int(1), args.Error(2)
}

func (m *mockUserService) UpdateUser(ctx context.Context, actor visibility.Actor, id int64, patch services.UserPatch) (*models.User, error) {
	args := m.Called(ctx, actor, id, patch)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUserService) DeleteUser(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockUserService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword, confirm string) error {
	return m.Called(ctx, userID, oldPassword, newPassword, confirm).Error(0)
}

func (m *mockUserService) SetPassword(ctx context.Context, userID int64, newPassword string) error {
	return m.Called(ctx, userID, newPassword).Error(0)
}

func (m *mockUserService) EnsureAdminUserExists(ctx context.Context, username, password, email string) error {
	return m.Called(ctx, username, password, email).Error(0)
}

type mockIssueService struct{ mock.Mock }

func (m *mockIssueService) CreateIssue(ctx context.Context, actor visibility.Actor, in services.IssueInput) (*models.IssueDetail, error) {
	args := m.Called(ctx, actor, in)
	d, _ := args.Get(0).(*models.IssueDetail)
	return d, args.Error(1)
}

func (m *mockIssueService) GetIssue(ctx context.Context, actor visibility.Actor, id int64) (*models.IssueDetail, error) {
	args := m.Called(ctx, actor, id)
	d, _ := args.Get(0).(*models.IssueDetail)
	return d, args.Error(1)
}

func (m *mockIssueService) ListIssues(ctx context.Context, actor visibility.Actor, filter services.IssueFilter, page services.PageRequest) ([]models.IssueSummary, int, error) {
	args := m.Called(ctx, actor, filter, page)
	items, _ := args.Get(0).([]models.IssueSummary)
	return items, args.Int(1), args.Error(2)
}

func (m *mockIssueService) UpdateIssue(ctx context.Context, actor visibility.Actor, id int64, patch tracker.Patch) (*models.IssueDetail, error) {
	args := m.Called(ctx, actor, id, patch)
	d, _ := args.Get(0).(*models.IssueDetail)
	return d, args.Error(1)
}

func (m *mockIssueService) DeleteIssue(ctx context.Context, actor visibility.Actor, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

type mockCommentService struct{ mock.Mock }

func (m *mockCommentService) CreateComment(ctx context.Context, actor visibility.Actor, issueID int64, content string) (*models.CommentWithAuthor, error) {
	args := m.Called(ctx, actor, issueID, content)
	cm, _ := args.Get(0).(*models.CommentWithAuthor)
	return cm, args.Error(1)
}

func (m *mockCommentService) ListComments(ctx context.Context, actor visibility.Actor, filter services.CommentFilter, page services.PageRequest) ([]models.CommentWithAuthor, int, error) {
	args := m.Called(ctx, actor, filter, page)
	items, _ := args.Get(0).([]models.CommentWithAuthor)
	return items, args.Int(1), args.Error(2)
}

func (m *mockCommentService) GetComment(ctx context.Context, actor visibility.Actor, id int64) (*models.CommentWithAuthor, error) {
	args := m.Called(ctx, actor, id)
	cm, _ := args.Get(0).(*models.CommentWithAuthor)
	return cm, args.Error(1)
}

func (m *mockCommentService) UpdateComment(ctx context.Context, actor visibility.Actor, id int64, content string) (*models.CommentWithAuthor, error) {
	args := m.Called(ctx, actor, id, content)
	cm, _ := args.Get(0).(*models.CommentWithAuthor)
	return cm, args.Error(1)
}

func (m *mockCommentService) DeleteComment(ctx context.Context, actor visibility.Actor, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

type mockFeedbackService struct{ mock.Mock }

func (m *mockFeedbackService) CreateFeedback(ctx context.Context, actor visibility.Actor, issueID int64, in services.FeedbackInput) (*models.IssueFeedback, error) {
	args := m.Called(ctx, actor, issueID, in)
	fb, _ := args.Get(0).(*models.IssueFeedback)
	return fb, args.Error(1)
}

func (m *mockFeedbackService) ListFeedback(ctx context.Context, actor visibility.Actor, page services.PageRequest) ([]models.IssueFeedback, int, error) {
	args := m.Called(ctx, actor, page)
	items, _ := args.Get(0).([]models.IssueFeedback)
	return items, args.Int(1), args.Error(2)
}

type mockAttachmentService struct{ mock.Mock }

func (m *mockAttachmentService) UploadAttachment(ctx context.Context, actor visibility.Actor, in services.UploadInput) (*models.AttachmentWithUploader, error) {
	args := m.Called(ctx, actor, in)
	a, _ := args.Get(0).(*models.AttachmentWithUploader)
	return a, args.Error(1)
}

func (m *mockAttachmentService) ListAttachments(ctx context.Context, actor visibility.Actor, filter services.AttachmentFilter, page services.PageRequest) ([]models.AttachmentWithUploader, int, error) {
	args := m.Called(ctx, actor, filter, page)
	items, _ := args.Get(0).([]models.AttachmentWithUploader)
	return items, args.Int(1), args.Error(2)
}

func (m *mockAttachmentService) GetAttachment(ctx context.Context, actor visibility.Actor, id int64) (*models.AttachmentWithUploader, error) {
	args := m.Called(ctx, actor, id)
	a, _ := args.Get(0).(*models.AttachmentWithUploader)
	return a, args.Error(1)
}

func (m *mockAttachmentService) OpenAttachment(ctx context.Context, actor visibility.Actor, id int64) (*models.AttachmentWithUploader, io.ReadCloser, error) {
	args := m.Called(ctx, actor, id)
	a, _ := args.Get(0).(*models.AttachmentWithUploader)
	rc, _ := args.Get(1).(io.ReadCloser)
	return a, rc, args.Error(2)
}

func (m *mockAttachmentService) DeleteAttachment(ctx context.Context, actor visibility.Actor, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

type mockNotificationService struct{ mock.Mock }

func (m *mockNotificationService) ListNotifications(ctx context.Context, actor visibility.Actor, filter services.NotificationFilter, page services.PageRequest) ([]models.NotificationWithIssue, int, error) {
	args := m.Called(ctx, actor, filter, page)
	items, _ := args.Get(0).([]models.NotificationWithIssue)
	return items, args.Int(1), args.Error(2)
}

func (m *mockNotificationService) UnreadCount(ctx context.Context, actor visibility.Actor) (int, error) {
	args := m.Called(ctx, actor)
	return args.Int(0), args.Error(1)
}

func (m *mockNotificationService) MarkRead(ctx context.Context, actor visibility.Actor, id int64) (*models.NotificationWithIssue, error) {
	args := m.Called(ctx, actor, id)
	n, _ := args.Get(0).(*models.NotificationWithIssue)
	return n, args.Error(1)
}

func (m *mockNotificationService) MarkAllRead(ctx context.Context, actor visibility.Actor) (int64, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).(int64), args.Error(1)
}

type mockCatalogService struct{ mock.Mock }

func (m *mockCatalogService) ListCourses(ctx context.Context, search, order string, page services.PageRequest) ([]models.Course, int, error) {
	args := m.Called(ctx, search, order, page)
	items, _ := args.Get(0).([]models.Course)
	return items, args.Int(1), args.Error(2)
}

func (m *mockCatalogService) GetCourse(ctx context.Context, id int64) (*models.Course, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.Course)
	return v, args.Error(1)
}

func (m *mockCatalogService) CreateCourse(ctx context.Context, in services.CourseInput) (*models.Course, error) {
	args := m.Called(ctx, in)
	v, _ := args.Get(0).(*models.Course)
	return v, args.Error(1)
}

func (m *mockCatalogService) UpdateCourse(ctx context.Context, id int64, in services.CourseInput) (*models.Course, error) {
	args := m.Called(ctx, id, in)
	v, _ := args.Get(0).(*models.Course)
	return v, args.Error(1)
}

func (m *mockCatalogService) DeleteCourse(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCatalogService) ListProjects(ctx context.Context, filter services.ProjectFilter, page services.PageRequest) ([]models.Project, int, error) {
	args := m.Called(ctx, filter, page)
	items, _ := args.Get(0).([]models.Project)
	return items, args.Int(1), args.Error(2)
}

func (m *mockCatalogService) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.Project)
	return v, args.Error(1)
}

func (m *mockCatalogService) CreateProject(ctx context.Context, in services.ProjectInput) (*models.Project, error) {
	args := m.Called(ctx, in)
	v, _ := args.Get(0).(*models.Project)
	return v, args.Error(1)
}

func (m *mockCatalogService) UpdateProject(ctx context.Context, id int64, in services.ProjectInput) (*models.Project, error) {
	args := m.Called(ctx, id, in)
	v, _ := args.Get(0).(*models.Project)
	return v, args.Error(1)
}

func (m *mockCatalogService) DeleteProject(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCatalogService) ListTasks(ctx context.Context, filter services.TaskFilter, page services.PageRequest) ([]models.Task, int, error) {
	args := m.Called(ctx, filter, page)
	items, _ := args.Get(0).([]models.Task)
	return items, args.Int(1), args.Error(2)
}

func (m *mockCatalogService) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.Task)
	return v, args.Error(1)
}

func (m *mockCatalogService) CreateTask(ctx context.Context, in services.TaskInput) (*models.Task, error) {
	args := m.Called(ctx, in)
	v, _ := args.Get(0).(*models.Task)
	return v, args.Error(1)
}

func (m *mockCatalogService) UpdateTask(ctx context.Context, id int64, in services.TaskInput) (*models.Task, error) {
	args := m.Called(ctx, id, in)
	v, _ := args.Get(0).(*models.Task)
	return v, args.Error(1)
}

func (m *mockCatalogService) DeleteTask(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCatalogService) Seed(ctx context.Context, seed models.CatalogSeed) (services.SeedResult, error) {
	args := m.Called(ctx, seed)
	return args.Get(0).(services.SeedResult), args.Error(1)
}

type mockTemplateService struct{ mock.Mock }

func (m *mockTemplateService) ListTemplates(ctx context.Context, filter services.TemplateFilter, page services.PageRequest) ([]models.IssueTemplate, int, error) {
	args := m.Called(ctx, filter, page)
	items, _ := args.Get(0).([]models.IssueTemplate)
	return items, args.Int(1), args.Error(2)
}

func (m *mockTemplateService) GetTemplate(ctx context.Context, id int64) (*models.IssueTemplate, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.IssueTemplate)
	return v, args.Error(1)
}

func (m *mockTemplateService) CreateTemplate(ctx context.Context, actor visibility.Actor, in services.TemplateInput) (*models.IssueTemplate, error) {
	args := m.Called(ctx, actor, in)
	v, _ := args.Get(0).(*models.IssueTemplate)
	return v, args.Error(1)
}

func (m *mockTemplateService) UpdateTemplate(ctx context.Context, actor visibility.Actor, id int64, in services.TemplateInput) (*models.IssueTemplate, error) {
	args := m.Called(ctx, actor, id, in)
	v, _ := args.Get(0).(*models.IssueTemplate)
	return v, args.Error(1)
}

func (m *mockTemplateService) DeleteTemplate(ctx context.Context, actor visibility.Actor, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

type mockKnowledgeService struct{ mock.Mock }

func (m *mockKnowledgeService) ListArticles(ctx context.Context, filter services.ArticleFilter, page services.PageRequest) ([]models.KBArticle, int, error) {
	args := m.Called(ctx, filter, page)
	items, _ := args.Get(0).([]models.KBArticle)
	return items, args.Int(1), args.Error(2)
}

func (m *mockKnowledgeService) GetArticle(ctx context.Context, id int64) (*models.KBArticle, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.KBArticle)
	return v, args.Error(1)
}

func (m *mockKnowledgeService) CreateArticle(ctx context.Context, actor visibility.Actor, in services.ArticleInput) (*models.KBArticle, error) {
	args := m.Called(ctx, actor, in)
	v, _ := args.Get(0).(*models.KBArticle)
	return v, args.Error(1)
}

func (m *mockKnowledgeService) UpdateArticle(ctx context.Context, actor visibility.Actor, id int64, in services.ArticleInput) (*models.KBArticle, error) {
	args := m.Called(ctx, actor, id, in)
	v, _ := args.Get(0).(*models.KBArticle)
	return v, args.Error(1)
}

func (m *mockKnowledgeService) DeleteArticle(ctx context.Context, actor visibility.Actor, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}
