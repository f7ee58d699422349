// Package main provides the entry point for the issue tracker admin CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"issuetracker/cmd/adm/commands"
	"issuetracker/internal/config"
	"issuetracker/internal/di"
	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The admin tool talks to the terminal; only errors go to the log and
	// nothing is exported
	cfg.Server.LogLevel = "error"
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "issuetracker-adm", cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	// Schema changes belong to the server; the CLI works on what is there
	container := di.NewServiceContainer(cfg, logger, di.WithoutMigrations())
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": contextutils.MaskDatabaseURL(cfg.Database.URL)})
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := newRootCmd(container).ExecuteContext(ctx); err != nil {
		code = 1
	}
	if err := container.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "Failed to close database connection", map[string]interface{}{"error": err.Error()})
	}
	os.Exit(code)
}

func newRootCmd(container *di.ServiceContainer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Issue Tracker Administration Tool",
		Long: `Issue Tracker Administration Tool

Provides commands for user management, the curriculum catalog and
database maintenance.`,
		SilenceUsage: true,
	}

	userService, _ := container.GetUserService()
	catalogService, _ := container.GetCatalogService()
	cleanupService, _ := container.GetCleanupService()
	logger := container.GetLogger()

	rootCmd.AddCommand(commands.UserCommands(userService, logger))
	rootCmd.AddCommand(commands.CatalogCommands(catalogService, logger))
	rootCmd.AddCommand(commands.DatabaseCommands(container.GetDatabase(), cleanupService, logger))
	return rootCmd
}
