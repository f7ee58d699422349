// Package main provides the entry point for the issue tracker API server.
// It sets up the HTTP server, database connections, middleware, and API routes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"issuetracker/internal/config"
	"issuetracker/internal/di"
	"issuetracker/internal/handlers"
	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-gonic/gin"
)

// Application encapsulates the main application logic and can be tested
type Application struct {
	container di.ServiceContainerInterface
	router    *gin.Engine
}

// routerServices pulls every service the router needs out of the container
func routerServices(container di.ServiceContainerInterface) (svc handlers.RouterServices, err error) {
	if svc.Users, err = container.GetUserService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get user service")
	}
	if svc.Catalog, err = container.GetCatalogService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get catalog service")
	}
	if svc.Issues, err = container.GetIssueService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get issue service")
	}
	if svc.Comments, err = container.GetCommentService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get comment service")
	}
	if svc.Attachments, err = container.GetAttachmentService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get attachment service")
	}
	if svc.Feedback, err = container.GetFeedbackService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get feedback service")
	}
	if svc.Notifications, err = container.GetNotificationService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get notification service")
	}
	if svc.Templates, err = container.GetTemplateService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get template service")
	}
	if svc.Knowledge, err = container.GetKnowledgeService(); err != nil {
		return svc, contextutils.WrapError(err, "failed to get knowledge service")
	}
	return svc, nil
}

// NewApplication creates a new application instance
func NewApplication(container di.ServiceContainerInterface) (*Application, error) {
	svc, err := routerServices(container)
	if err != nil {
		return nil, err
	}

	router := handlers.NewRouter(container.GetConfig(), svc, container.GetTokenManager(), container.GetLogger())

	return &Application{
		container: container,
		router:    router,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
func (a *Application) Run(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return contextutils.WrapError(err, "server failed")
	}
}

// Shutdown gracefully shuts down the application
func (a *Application) Shutdown(ctx context.Context) error {
	return a.container.Shutdown(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, handlers.ServiceName, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if tp != nil {
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(shutdownCtx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(shutdownCtx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error()})
			}
		}
		_ = logger.Sync()
	}()

	logger.Info(ctx, "Starting issue tracker", map[string]interface{}{
		"port":     cfg.Server.Port,
		"logLevel": cfg.Server.LogLevel,
	})

	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to initialize services", err)
		os.Exit(1)
	}

	if err := container.EnsureAdminUser(ctx); err != nil {
		logger.Error(ctx, "Failed to ensure admin user exists", err, map[string]interface{}{"admin_username": cfg.Server.AdminUsername})
		os.Exit(1)
	}

	app, err := NewApplication(container)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err)
		os.Exit(1)
	}

	if err := app.Run(ctx, cfg.Server.Port); err != nil {
		logger.Error(ctx, "Application failed", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "Received shutdown signal, shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Error during application shutdown", err)
		os.Exit(1)
	}

	logger.Info(shutdownCtx, "Shutdown completed successfully")
}
