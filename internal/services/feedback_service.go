package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"issuetracker/internal/database"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/tracker"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	sq "github.com/Masterminds/squirrel"
)

// FeedbackServiceInterface defines the interface for issue feedback
type FeedbackServiceInterface interface {
	CreateFeedback(ctx context.Context, actor visibility.Actor, issueID int64, in FeedbackInput) (*models.IssueFeedback, error)
	ListFeedback(ctx context.Context, actor visibility.Actor, page PageRequest) ([]models.IssueFeedback, int, error)
}

type FeedbackInput struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment"`
}

// FeedbackService records the reporter's rating of a resolved issue
type FeedbackService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewFeedbackService creates a new FeedbackService instance.
func NewFeedbackService(db *sql.DB, logger *observability.Logger) *FeedbackService {
	if db == nil {
		panic("NewFeedbackService: db is nil")
	}
	if logger == nil {
		panic("NewFeedbackService: logger is nil")
	}
	return &FeedbackService{db: db, logger: logger}
}

var feedbackColumns = []string{"f.id", "f.issue_id", "f.rating", "f.comment", "f.created_at"}

func scanFeedback(row rowScanner) (*models.IssueFeedback, error) {
	f := &models.IssueFeedback{}
	if err := row.Scan(&f.ID, &f.IssueID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
		return nil, err
	}
	return f, nil
}

// loadFeedback returns the issue's feedback, or nil when there is none
func loadFeedback(ctx context.Context, q querier, issueID int64) (*models.IssueFeedback, error) {
	query, args, err := psql.Select(feedbackColumns...).From("issue_feedback f").Where(sq.Eq{"f.issue_id": issueID}).ToSql()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build feedback query")
	}
	f, err := scanFeedback(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load feedback")
	}
	return f, nil
}

// CreateFeedback stores the single rating a reporter may leave on a
// resolved issue and notifies the assignee and the cohort's mentors.
func (s *FeedbackService) CreateFeedback(ctx context.Context, actor visibility.Actor, issueID int64, in FeedbackInput) (result0 *models.IssueFeedback, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "create_feedback",
		observability.AttributeUserID(actor.ID),
		observability.AttributeIssueID(issueID),
	)
	defer observability.FinishSpan(span, &err)

	var (
		feedback *models.IssueFeedback
		effects  tracker.Effects
	)
	err = database.WithTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		issue, err := loadIssue(ctx, tx, issueID, true)
		if err != nil {
			return err
		}
		if issue.ReportedBy != actor.ID {
			return contextutils.Forbiddenf("Only the reporter can add feedback.")
		}
		if issue.Status != models.StatusResolved {
			return contextutils.InvalidStatef("Feedback can only be added to resolved issues.")
		}
		existing, err := loadFeedback(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if existing != nil {
			return contextutils.Conflictf("Feedback already exists for this issue.")
		}
		if in.Rating < 1 || in.Rating > 5 {
			return contextutils.Validationf("rating", "Rating must be between 1 and 5.")
		}

		var comment sql.NullString
		if in.Comment != nil && strings.TrimSpace(*in.Comment) != "" {
			comment = sql.NullString{String: *in.Comment, Valid: true}
		}
		feedback, err = scanFeedback(tx.QueryRowContext(ctx,
			`INSERT INTO issue_feedback (issue_id, rating, comment, created_at) VALUES ($1, $2, $3, NOW())
			 RETURNING id, issue_id, rating, comment, created_at`,
			issueID, in.Rating, comment))
		if err != nil {
			if database.IsUniqueViolation(err) {
				return contextutils.Conflictf("Feedback already exists for this issue.")
			}
			return contextutils.WrapError(err, "failed to insert feedback")
		}

		audience, err := loadAudience(ctx, tx, issue.Cohort)
		if err != nil {
			return err
		}
		effects = tracker.PlanFeedback(issue, audience)
		return applyEffects(ctx, tx, effects)
	})
	if err != nil {
		return nil, err
	}

	recordEffects(ctx, effects)
	s.logger.Info(ctx, "Feedback recorded", map[string]interface{}{"issue_id": issueID, "rating": feedback.Rating})
	return feedback, nil
}

// ListFeedback returns feedback on issues the actor may see, newest first
func (s *FeedbackService) ListFeedback(ctx context.Context, actor visibility.Actor, page PageRequest) (result0 []models.IssueFeedback, result1 int, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "list_feedback", observability.AttributeUserID(actor.ID))
	defer observability.FinishSpan(span, &err)

	where := visibility.Scope(actor, visibility.KindFeedback)
	total, err := count(ctx, s.db, "issue_feedback f", where)
	if err != nil {
		return nil, 0, err
	}
	b := psql.Select(feedbackColumns...).From("issue_feedback f").Where(where).OrderBy("f.created_at DESC", "f.id DESC")
	list, err := listRows(ctx, s.db, page.apply(b), scanFeedback)
	return list, total, err
}
