package services

import (
	"context"
	"database/sql"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

// NotificationServiceInterface defines the recipient-side notification operations
type NotificationServiceInterface interface {
	ListNotifications(ctx context.Context, actor visibility.Actor, filter NotificationFilter, page PageRequest) ([]models.NotificationWithIssue, int, error)
	UnreadCount(ctx context.Context, actor visibility.Actor) (int, error)
	MarkRead(ctx context.Context, actor visibility.Actor, id int64) (*models.NotificationWithIssue, error)
	MarkAllRead(ctx context.Context, actor visibility.Actor) (int64, error)
}

type NotificationFilter struct {
	IsRead *bool
	Type   models.NotificationType
}

// NotificationService reads notifications for their recipient. Rows are
// written by the issue, comment and feedback write paths.
type NotificationService struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewNotificationService(db *sql.DB, logger *observability.Logger) *NotificationService {
	return &NotificationService{db: db, logger: logger}
}

var notificationColumns = []string{
	"n.id", "n.recipient_id", "n.issue_id", "n.notification_type", "n.message", "n.is_read", "n.created_at",
	"ni.title", "ni.status",
}

const notificationFrom = "notifications n LEFT JOIN issues ni ON ni.id = n.issue_id"

func scanNotification(row rowScanner) (*models.NotificationWithIssue, error) {
	n := &models.NotificationWithIssue{}
	err := row.Scan(&n.ID, &n.RecipientID, &n.IssueID, &n.NotificationType, &n.Message, &n.IsRead, &n.CreatedAt,
		&n.IssueTitle, &n.IssueStatus)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// mine restricts to the actor's own notifications on top of issue visibility
func mine(actor visibility.Actor, filters ...sq.Sqlizer) sq.And {
	return visibility.Scope(actor, visibility.KindNotification,
		append([]sq.Sqlizer{sq.Eq{"n.recipient_id": actor.ID}}, filters...)...)
}

func (s *NotificationService) ListNotifications(ctx context.Context, actor visibility.Actor, filter NotificationFilter, page PageRequest) (result0 []models.NotificationWithIssue, result1 int, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "list_notifications", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)

	var filters []sq.Sqlizer
	if filter.IsRead != nil {
		filters = append(filters, sq.Eq{"n.is_read": *filter.IsRead})
	}
	if filter.Type != "" {
		filters = append(filters, sq.Eq{"n.notification_type": filter.Type})
	}
	where := mine(actor, filters...)

	total, err := count(ctx, s.db, "notifications n", where)
	if err != nil {
		return nil, 0, err
	}
	b := psql.Select(notificationColumns...).From(notificationFrom).Where(where).OrderBy("n.created_at DESC", "n.id DESC")
	list, err := listRows(ctx, s.db, page.apply(b), scanNotification)
	return list, total, err
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor visibility.Actor) (result0 int, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "unread_count", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)
	return count(ctx, s.db, "notifications n", mine(actor, sq.Eq{"n.is_read": false}))
}

// MarkRead flags one of the actor's notifications as read. Someone else's
// notification reads as not found.
func (s *NotificationService) MarkRead(ctx context.Context, actor visibility.Actor, id int64) (result0 *models.NotificationWithIssue, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "mark_read",
		observability.AttributeUserID(actor.ID),
		attribute.Int64("notification.id", id),
	)
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`, id, actor.ID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to mark notification read")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, contextutils.NotFoundf("Notification not found.")
	}
	return getRow(ctx, s.db, psql.Select(notificationColumns...).From(notificationFrom).Where(mine(actor, sq.Eq{"n.id": id})),
		scanNotification, "Notification not found.")
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor visibility.Actor) (result0 int64, err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "mark_all_read", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE`, actor.ID)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to mark notifications read")
	}
	n, _ := res.RowsAffected()
	s.logger.Debug(ctx, "Marked notifications read", map[string]interface{}{"user_id": actor.ID, "count": n})
	return n, nil
}
