// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"issuetracker/internal/database"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// Maintenance is the part of the cleanup service the db commands use
type Maintenance interface {
	Stats(ctx context.Context, olderThan time.Duration) (services.CleanupStats, error)
	PruneReadNotifications(ctx context.Context, olderThan time.Duration) (int64, error)
}

const defaultRetention = 30 * 24 * time.Hour

// DatabaseCommands returns the database management commands
func DatabaseCommands(db *sql.DB, cleanup Maintenance, logger *observability.Logger) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the issue tracker.

Available commands:
  stats               - Show row counts per table
  prune-notifications - Delete old read notifications`,
	}

	dbCmd.AddCommand(statsCmd(db, cleanup, logger))
	dbCmd.AddCommand(pruneCmd(cleanup, logger))

	return dbCmd
}

func statsCmd(db *sql.DB, cleanup Maintenance, logger *observability.Logger) *cobra.Command {
	olderThan := defaultRetention

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show the row count of every table and how many notifications a prune would remove.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			counts, err := database.TableCounts(ctx, db)
			if err != nil {
				logger.Error(ctx, "Failed to count rows", err)
				return contextutils.WrapError(err, "failed to get database statistics")
			}

			tables := make([]string, 0, len(counts))
			for table := range counts {
				tables = append(tables, table)
			}
			sort.Strings(tables)

			fmt.Fprintln(out, getDatabaseInfo(db))
			fmt.Fprintf(out, "\n%-20s %12s\n", "Table", "Rows")
			for _, table := range tables {
				fmt.Fprintf(out, "%-20s %12s\n", table, humanize.Comma(counts[table]))
			}

			stats, err := cleanup.Stats(ctx, olderThan)
			if err != nil {
				logger.Error(ctx, "Failed to get cleanup stats", err)
				return contextutils.WrapError(err, "failed to get cleanup statistics")
			}
			fmt.Fprintf(out, "\nUnread notifications: %s\n", humanize.Comma(stats.UnreadNotifications))
			fmt.Fprintf(out, "Read notifications older than %s: %s\n", olderThan, humanize.Comma(stats.PrunableNotifications))

			logger.Info(ctx, "Database statistics", map[string]interface{}{"tables": len(counts)})
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", defaultRetention, "Age used for the prunable notification count")
	return cmd
}

func pruneCmd(cleanup Maintenance, logger *observability.Logger) *cobra.Command {
	olderThan := defaultRetention
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune-notifications",
		Short: "Delete old read notifications",
		Long: `Delete read notifications created more than --older-than ago.
Unread notifications are always kept. Use --dry-run to only count them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			if dryRun {
				stats, err := cleanup.Stats(ctx, olderThan)
				if err != nil {
					return contextutils.WrapError(err, "failed to get cleanup statistics")
				}
				fmt.Fprintf(out, "Would delete %s read notifications\n", humanize.Comma(stats.PrunableNotifications))
				return nil
			}

			n, err := cleanup.PruneReadNotifications(ctx, olderThan)
			if err != nil {
				logger.Error(ctx, "Prune failed", err, map[string]interface{}{"older_than": olderThan.String()})
				return contextutils.WrapError(err, "failed to prune notifications")
			}
			fmt.Fprintf(out, "Deleted %s read notifications\n", humanize.Comma(n))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", defaultRetention, "Minimum age of a read notification to delete")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only count what would be deleted")
	return cmd
}
