package services

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"
)

// CleanupService handles database maintenance. Notifications are the only
// table that grows without bound; everything else is removed by cascades.
type CleanupService struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

// NewCleanupServiceWithLogger creates a new cleanup service with logger
func NewCleanupServiceWithLogger(db *sql.DB, logger *observability.Logger) *CleanupService {
	return &CleanupService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// CleanupStats is what a prune would remove and what it keeps
type CleanupStats struct {
	PrunableNotifications int64 `json:"prunable_notifications"`
	UnreadNotifications   int64 `json:"unread_notifications"`
}

// Stats counts read notifications older than olderThan, and unread ones
func (c *CleanupService) Stats(ctx context.Context, olderThan time.Duration) (result0 CleanupStats, err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "stats")
	defer observability.FinishSpan(span, &err)

	cutoff := c.now().Add(-olderThan)
	var stats CleanupStats
	err = c.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_read AND created_at < $1),
			COUNT(*) FILTER (WHERE NOT is_read)
		FROM notifications
	`, cutoff).Scan(&stats.PrunableNotifications, &stats.UnreadNotifications)
	if err != nil {
		return CleanupStats{}, contextutils.WrapError(err, "failed to count notifications")
	}
	return stats, nil
}

// PruneReadNotifications deletes read notifications created before
// now-olderThan. Unread notifications are never removed.
func (c *CleanupService) PruneReadNotifications(ctx context.Context, olderThan time.Duration) (result0 int64, err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "prune_read_notifications",
		attribute.String("cleanup.older_than", olderThan.String()))
	defer observability.FinishSpan(span, &err)

	if olderThan <= 0 {
		return 0, contextutils.Validationf("older_than", "Retention must be positive.")
	}
	cutoff := c.now().Add(-olderThan)

	query, args, err := psql.Delete("notifications").
		Where("is_read").
		Where("created_at < ?", cutoff).
		ToSql()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to build prune query")
	}
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to prune notifications")
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to read pruned row count")
	}

	span.SetAttributes(attribute.Int64("cleanup.rows_affected", rowsAffected))
	c.logger.Info(ctx, "Pruned read notifications", map[string]interface{}{
		"rows_affected": rowsAffected,
		"cutoff":        cutoff.Format(time.RFC3339),
	})
	return rowsAffected, nil
}
