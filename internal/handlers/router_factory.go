package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"issuetracker/internal/auth"
	"issuetracker/internal/config"
	"issuetracker/internal/middleware"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	"issuetracker/internal/version"
)

// ServiceName tags traces, logs and the version payload
const ServiceName = "issuetracker"

// RouterServices is everything the HTTP layer calls into
type RouterServices struct {
	Users         services.UserServiceInterface
	Catalog       services.CatalogServiceInterface
	Issues        services.IssueServiceInterface
	Comments      services.CommentServiceInterface
	Attachments   services.AttachmentServiceInterface
	Feedback      services.FeedbackServiceInterface
	Notifications services.NotificationServiceInterface
	Templates     services.TemplateServiceInterface
	Knowledge     services.KnowledgeServiceInterface
}

// NewRouter creates a new router with all the necessary middleware and routes
func NewRouter(
	cfg *config.Config,
	svc RouterServices,
	tokens *auth.TokenManager,
	logger *observability.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorRecoveryMiddleware(logger))
	router.Use(middleware.RequestLogger(logger))

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
	})

	router.Use(observability.GinMiddleware(ServiceName))
	router.Use(observability.GinErrorAttributes())

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false
	router.MaxMultipartMemory = config.MultipartMemory

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.IsDevelopment = cfg.Server.Debug
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	schemas := middleware.MustLoadEmbeddedSchemas()
	validate := func(schema string) gin.HandlerFunc {
		return middleware.ValidateJSONBody(schemas, schema, logger)
	}
	requireAuth := middleware.RequireAuth(tokens, svc.Users)
	staff := middleware.RequireRole(models.RoleMentor, models.RoleAdmin)
	admin := middleware.RequireRole(models.RoleAdmin)

	authHandler := NewAuthHandler(svc.Users, tokens, logger)
	userHandler := NewUserHandler(svc.Users, cfg, logger)
	catalogHandler := NewCatalogHandler(svc.Catalog, cfg, logger)
	issueHandler := NewIssueHandler(svc.Issues, svc.Comments, svc.Feedback, cfg, logger)
	commentHandler := NewCommentHandler(svc.Comments, cfg, logger)
	attachmentHandler := NewAttachmentHandler(svc.Attachments, cfg, logger)
	notificationHandler := NewNotificationHandler(svc.Notifications, cfg, logger)
	templateHandler := NewTemplateHandler(svc.Templates, cfg, logger)
	knowledgeHandler := NewKnowledgeHandler(svc.Knowledge, cfg, logger)
	routeListing := NewRouteListingHandler(ServiceName)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, version.Get(ServiceName))
		})

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", validate("login"), authHandler.Login)
			authGroup.POST("/refresh", validate("refresh"), authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.POST("/register", requireAuth, admin, validate("register"), authHandler.Register)
		}

		api := v1.Group("", requireAuth)

		users := api.Group("/users")
		{
			users.GET("", staff, userHandler.ListUsers)
			users.GET("/me", userHandler.Me)
			users.POST("/me/password", validate("password_change"), userHandler.ChangePassword)
			users.GET("/:id", userHandler.GetUser)
			users.PATCH("/:id", validate("user_update"), userHandler.UpdateUser)
			users.DELETE("/:id", admin, userHandler.DeleteUser)
		}

		courses := api.Group("/courses")
		{
			courses.GET("", catalogHandler.ListCourses)
			courses.GET("/:id", catalogHandler.GetCourse)
			courses.POST("", admin, validate("course"), catalogHandler.CreateCourse)
			courses.PUT("/:id", admin, validate("course"), catalogHandler.UpdateCourse)
			courses.DELETE("/:id", admin, catalogHandler.DeleteCourse)
		}
		projects := api.Group("/projects")
		{
			projects.GET("", catalogHandler.ListProjects)
			projects.GET("/:id", catalogHandler.GetProject)
			projects.POST("", admin, validate("project"), catalogHandler.CreateProject)
			projects.PUT("/:id", admin, validate("project"), catalogHandler.UpdateProject)
			projects.DELETE("/:id", admin, catalogHandler.DeleteProject)
		}
		tasks := api.Group("/tasks")
		{
			tasks.GET("", catalogHandler.ListTasks)
			tasks.GET("/:id", catalogHandler.GetTask)
			tasks.POST("", admin, validate("task"), catalogHandler.CreateTask)
			tasks.PUT("/:id", admin, validate("task"), catalogHandler.UpdateTask)
			tasks.DELETE("/:id", admin, catalogHandler.DeleteTask)
		}

		issues := api.Group("/issues")
		{
			issues.GET("", issueHandler.ListIssues)
			issues.GET("/mine", issueHandler.MyIssues)
			issues.GET("/assigned", issueHandler.AssignedIssues)
			issues.POST("", validate("issue_create"), issueHandler.CreateIssue)
			issues.GET("/:id", issueHandler.GetIssue)
			issues.PATCH("/:id", validate("issue_update"), issueHandler.UpdateIssue)
			issues.DELETE("/:id", admin, issueHandler.DeleteIssue)
			issues.POST("/:id/comments", validate("comment"), issueHandler.AddComment)
			issues.POST("/:id/feedback", validate("feedback"), issueHandler.AddFeedback)
		}
		api.GET("/feedback", issueHandler.ListFeedback)

		comments := api.Group("/comments")
		{
			comments.GET("", commentHandler.ListComments)
			comments.GET("/:id", commentHandler.GetComment)
			comments.PATCH("/:id", validate("comment"), commentHandler.UpdateComment)
			comments.DELETE("/:id", commentHandler.DeleteComment)
		}

		attachmentRoutes := api.Group("/attachments")
		{
			attachmentRoutes.POST("", attachmentHandler.Upload)
			attachmentRoutes.GET("", attachmentHandler.ListAttachments)
			attachmentRoutes.GET("/:id", attachmentHandler.GetAttachment)
			attachmentRoutes.GET("/:id/download", attachmentHandler.Download)
			attachmentRoutes.DELETE("/:id", attachmentHandler.DeleteAttachment)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationHandler.ListNotifications)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/read-all", notificationHandler.MarkAllRead)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}

		templates := api.Group("/templates")
		{
			templates.GET("", templateHandler.ListTemplates)
			templates.GET("/:id", templateHandler.GetTemplate)
			templates.POST("", staff, validate("template"), templateHandler.CreateTemplate)
			templates.PUT("/:id", validate("template"), templateHandler.UpdateTemplate)
			templates.DELETE("/:id", templateHandler.DeleteTemplate)
		}

		articles := api.Group("/kb/articles")
		{
			articles.GET("", knowledgeHandler.ListArticles)
			articles.GET("/:id", knowledgeHandler.GetArticle)
			articles.POST("", staff, validate("article"), knowledgeHandler.CreateArticle)
			articles.PUT("/:id", validate("article"), knowledgeHandler.UpdateArticle)
			articles.DELETE("/:id", knowledgeHandler.DeleteArticle)
		}

		api.GET("/admin/routes", admin, routeListing.GetRouteListingJSON)
	}

	routeListing.CollectRoutes(router)
	return router
}
