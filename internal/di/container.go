// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"issuetracker/internal/attachments"
	"issuetracker/internal/auth"
	"issuetracker/internal/config"
	"issuetracker/internal/database"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (services.UserServiceInterface, error)
	GetCatalogService() (services.CatalogServiceInterface, error)
	GetIssueService() (services.IssueServiceInterface, error)
	GetCommentService() (services.CommentServiceInterface, error)
	GetAttachmentService() (services.AttachmentServiceInterface, error)
	GetFeedbackService() (services.FeedbackServiceInterface, error)
	GetNotificationService() (services.NotificationServiceInterface, error)
	GetTemplateService() (services.TemplateServiceInterface, error)
	GetKnowledgeService() (services.KnowledgeServiceInterface, error)
	GetCleanupService() (*services.CleanupService, error)
	GetTokenManager() *auth.TokenManager
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	EnsureAdminUser(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	dbManager     *database.Manager
	db            *sql.DB
	tokens        *auth.TokenManager
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error

	// skipMigrations is set by the admin CLI, which must not change the schema
	// as a side effect of a read-only command
	skipMigrations bool
}

// Option adjusts a container before Initialize
type Option func(*ServiceContainer)

// WithoutMigrations opens the database without applying pending migrations
func WithoutMigrations() Option {
	return func(sc *ServiceContainer) { sc.skipMigrations = true }
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger, opts ...Option) *ServiceContainer {
	sc := &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Initialize opens the database, applies migrations and wires every service
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.dbManager = database.NewManager(sc.logger)
	var (
		db  *sql.DB
		err error
	)
	if sc.skipMigrations {
		db, err = sc.dbManager.Open(ctx, sc.cfg.Database)
	} else {
		db, err = sc.dbManager.InitDB(sc.cfg.Database)
	}
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	if err := sc.wire(db); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to wire services")
	}
	return nil
}

// wire builds every service on top of an open database
func (sc *ServiceContainer) wire(db *sql.DB) error {
	sc.db = db

	store, err := attachments.NewDiskStore(sc.cfg.Attachments.StorageDir)
	if err != nil {
		return err
	}
	policy := attachments.Policy{
		MaxSize:           sc.cfg.Attachments.MaxUploadSize,
		AllowedMIMETypes:  sc.cfg.Attachments.AllowedMIMETypes,
		AllowedExtensions: sc.cfg.Attachments.AllowedExtensions,
	}

	sc.tokens = auth.NewTokenManager(sc.cfg.Auth.JWTSecret, sc.cfg.Auth.Issuer,
		sc.cfg.Auth.AccessTokenTTL, sc.cfg.Auth.RefreshTokenTTL)

	sc.services["user"] = services.NewUserServiceWithLogger(db, sc.cfg, sc.logger)
	sc.services["catalog"] = services.NewCatalogService(db, sc.logger)
	sc.services["issue"] = services.NewIssueService(db, sc.logger)
	sc.services["comment"] = services.NewCommentService(db, sc.logger)
	sc.services["attachment"] = services.NewAttachmentService(db, store, policy, sc.logger)
	sc.services["feedback"] = services.NewFeedbackService(db, sc.logger)
	sc.services["notification"] = services.NewNotificationService(db, sc.logger)
	sc.services["template"] = services.NewTemplateService(db, sc.logger)
	sc.services["knowledge"] = services.NewKnowledgeService(db, sc.logger)
	sc.services["cleanup"] = services.NewCleanupServiceWithLogger(db, sc.logger)
	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		if len(sc.services) == 0 {
			return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "service %s requested before Initialize", name)
		}
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

func (sc *ServiceContainer) GetUserService() (services.UserServiceInterface, error) {
	return GetServiceAs[services.UserServiceInterface](sc, "user")
}

func (sc *ServiceContainer) GetCatalogService() (services.CatalogServiceInterface, error) {
	return GetServiceAs[services.CatalogServiceInterface](sc, "catalog")
}

func (sc *ServiceContainer) GetIssueService() (services.IssueServiceInterface, error) {
	return GetServiceAs[services.IssueServiceInterface](sc, "issue")
}

func (sc *ServiceContainer) GetCommentService() (services.CommentServiceInterface, error) {
	return GetServiceAs[services.CommentServiceInterface](sc, "comment")
}

func (sc *ServiceContainer) GetAttachmentService() (services.AttachmentServiceInterface, error) {
	return GetServiceAs[services.AttachmentServiceInterface](sc, "attachment")
}

func (sc *ServiceContainer) GetFeedbackService() (services.FeedbackServiceInterface, error) {
	return GetServiceAs[services.FeedbackServiceInterface](sc, "feedback")
}

func (sc *ServiceContainer) GetNotificationService() (services.NotificationServiceInterface, error) {
	return GetServiceAs[services.NotificationServiceInterface](sc, "notification")
}

func (sc *ServiceContainer) GetTemplateService() (services.TemplateServiceInterface, error) {
	return GetServiceAs[services.TemplateServiceInterface](sc, "template")
}

func (sc *ServiceContainer) GetKnowledgeService() (services.KnowledgeServiceInterface, error) {
	return GetServiceAs[services.KnowledgeServiceInterface](sc, "knowledge")
}

// GetCleanupService returns the maintenance service used by the admin CLI
func (sc *ServiceContainer) GetCleanupService() (*services.CleanupService, error) {
	return GetServiceAs[*services.CleanupService](sc, "cleanup")
}

// GetTokenManager returns the bearer token signer
func (sc *ServiceContainer) GetTokenManager() *auth.TokenManager {
	return sc.tokens
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// cleanup runs the shutdown functions in reverse order of registration
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errs []error
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			sc.logger.Error(ctx, "Shutdown step failed", err)
			errs = append(errs, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errs) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errs)
	}
	return nil
}

// EnsureAdminUser creates the admin user if it doesn't exist
func (sc *ServiceContainer) EnsureAdminUser(ctx context.Context) error {
	userService, err := sc.GetUserService()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to get user service")
	}

	return userService.EnsureAdminUserExists(ctx, sc.cfg.Server.AdminUsername, sc.cfg.Server.AdminPassword, sc.cfg.Server.AdminEmail)
}
