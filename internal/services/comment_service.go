package services

import (
	"context"
	"database/sql"
	"strings"

	"issuetracker/internal/database"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/tracker"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

// CommentServiceInterface defines the interface for comment operations
type CommentServiceInterface interface {
	CreateComment(ctx context.Context, actor visibility.Actor, issueID int64, content string) (*models.CommentWithAuthor, error)
	ListComments(ctx context.Context, actor visibility.Actor, filter CommentFilter, page PageRequest) ([]models.CommentWithAuthor, int, error)
	GetComment(ctx context.Context, actor visibility.Actor, id int64) (*models.CommentWithAuthor, error)
	UpdateComment(ctx context.Context, actor visibility.Actor, id int64, content string) (*models.CommentWithAuthor, error)
	DeleteComment(ctx context.Context, actor visibility.Actor, id int64) error
}

type CommentFilter struct {
	IssueID *int64
	UserID  *int64
}

type CommentService struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewCommentService(db *sql.DB, logger *observability.Logger) *CommentService {
	return &CommentService{db: db, logger: logger}
}

var commentColumns = []string{
	"c.id", "c.issue_id", "c.user_id", "c.content", "c.created_at", "c.updated_at",
	"u.username", "u.first_name", "u.last_name", "u.role", "u.cohort",
}

const commentFrom = "comments c JOIN users u ON u.id = c.user_id"

func scanComment(row rowScanner) (*models.CommentWithAuthor, error) {
	c := &models.CommentWithAuthor{}
	err := row.Scan(&c.ID, &c.IssueID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt,
		&c.Author.Username, &c.Author.FirstName, &c.Author.LastName, &c.Author.Role, &c.Author.Cohort)
	if err != nil {
		return nil, err
	}
	c.Author.ID = c.UserID
	return c, nil
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", contextutils.Validationf("content", "This field may not be blank.")
	}
	return content, nil
}

// CreateComment adds a comment to an issue the actor may target and
// notifies the reporter and the assignee.
func (s *CommentService) CreateComment(ctx context.Context, actor visibility.Actor, issueID int64, content string) (result0 *models.CommentWithAuthor, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "create_comment",
		observability.AttributeUserID(actor.ID),
		observability.AttributeIssueID(issueID),
	)
	defer observability.FinishSpan(span, &err)

	if content, err = validateContent(content); err != nil {
		return nil, err
	}

	var (
		commentID int64
		effects   tracker.Effects
	)
	err = database.WithTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		issue, err := loadIssue(ctx, tx, issueID, false)
		if err != nil {
			return err
		}
		if err := visibility.CanTarget(actor, issue, "comment on"); err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx,
			`INSERT INTO comments (issue_id, user_id, content, created_at, updated_at) VALUES ($1, $2, $3, NOW(), NOW()) RETURNING id`,
			issueID, actor.ID, content).Scan(&commentID); err != nil {
			return contextutils.WrapError(err, "failed to insert comment")
		}

		effects = tracker.PlanComment(issue, actor.ID)
		return applyEffects(ctx, tx, effects)
	})
	if err != nil {
		return nil, err
	}

	recordEffects(ctx, effects)
	return getRow(ctx, s.db, psql.Select(commentColumns...).From(commentFrom).Where(sq.Eq{"c.id": commentID}),
		scanComment, "Comment not found.")
}

// ListComments returns comments on visible issues, oldest first
func (s *CommentService) ListComments(ctx context.Context, actor visibility.Actor, filter CommentFilter, page PageRequest) (result0 []models.CommentWithAuthor, result1 int, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "list_comments", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)

	var filters []sq.Sqlizer
	if filter.IssueID != nil {
		filters = append(filters, sq.Eq{"c.issue_id": *filter.IssueID})
	}
	if filter.UserID != nil {
		filters = append(filters, sq.Eq{"c.user_id": *filter.UserID})
	}
	where := visibility.Scope(actor, visibility.KindComment, filters...)

	total, err := count(ctx, s.db, "comments c", where)
	if err != nil {
		return nil, 0, err
	}
	b := psql.Select(commentColumns...).From(commentFrom).Where(where).OrderBy("c.created_at ASC", "c.id ASC")
	comments, err := listRows(ctx, s.db, page.apply(b), scanComment)
	return comments, total, err
}

func (s *CommentService) GetComment(ctx context.Context, actor visibility.Actor, id int64) (result0 *models.CommentWithAuthor, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "get_comment", attribute.Int64("comment.id", id))
	defer observability.FinishSpan(span, &err)
	return s.visibleComment(ctx, actor, id)
}

func (s *CommentService) visibleComment(ctx context.Context, actor visibility.Actor, id int64) (*models.CommentWithAuthor, error) {
	where := visibility.Scope(actor, visibility.KindComment, sq.Eq{"c.id": id})
	return getRow(ctx, s.db, psql.Select(commentColumns...).From(commentFrom).Where(where), scanComment, "Comment not found.")
}

// canModifyComment lets the author and staff edit or delete a comment
func canModifyComment(actor visibility.Actor, c *models.CommentWithAuthor) error {
	if c.UserID == actor.ID || actor.Role.IsStaff() {
		return nil
	}
	return contextutils.Forbiddenf("You can only modify your own comments.")
}

func (s *CommentService) UpdateComment(ctx context.Context, actor visibility.Actor, id int64, content string) (result0 *models.CommentWithAuthor, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "update_comment", attribute.Int64("comment.id", id))
	defer observability.FinishSpan(span, &err)

	comment, err := s.visibleComment(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err = canModifyComment(actor, comment); err != nil {
		return nil, err
	}
	if content, err = validateContent(content); err != nil {
		return nil, err
	}

	if _, err = s.db.ExecContext(ctx, `UPDATE comments SET content = $1, updated_at = NOW() WHERE id = $2`, content, id); err != nil {
		return nil, contextutils.WrapError(err, "failed to update comment")
	}
	return s.visibleComment(ctx, actor, id)
}

func (s *CommentService) DeleteComment(ctx context.Context, actor visibility.Actor, id int64) (err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "delete_comment", attribute.Int64("comment.id", id))
	defer observability.FinishSpan(span, &err)

	comment, err := s.visibleComment(ctx, actor, id)
	if err != nil {
		return err
	}
	if err = canModifyComment(actor, comment); err != nil {
		return err
	}
	if _, err = s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
		return contextutils.WrapError(err, "failed to delete comment")
	}
	return nil
}
