package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"issuetracker/internal/database"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/tracker"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	sq "github.com/Masterminds/squirrel"
)

// IssueServiceInterface defines the interface for issue operations
type IssueServiceInterface interface {
	CreateIssue(ctx context.Context, actor visibility.Actor, in IssueInput) (*models.IssueDetail, error)
	GetIssue(ctx context.Context, actor visibility.Actor, id int64) (*models.IssueDetail, error)
	ListIssues(ctx context.Context, actor visibility.Actor, filter IssueFilter, page PageRequest) ([]models.IssueSummary, int, error)
	UpdateIssue(ctx context.Context, actor visibility.Actor, id int64, patch tracker.Patch) (*models.IssueDetail, error)
	DeleteIssue(ctx context.Context, actor visibility.Actor, id int64) error
}

// IssueInput is the create payload. Status and ReportedBy are accepted so
// that clients sending them do not fail, but they are always overwritten.
type IssueInput struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"required"`
	Category    models.IssueCategory `json:"category" validate:"required,oneof=checker_error unclear_instructions typo technical_error other"`
	Urgency     models.IssueUrgency  `json:"urgency" validate:"omitempty,oneof=low medium high"`
	Cohort      string               `json:"cohort" validate:"max=50"`
	WeekNumber  int                  `json:"week_number" validate:"min=1"`
	CourseID    int64                `json:"course" validate:"required"`
	ProjectID   int64                `json:"project" validate:"required"`
	TaskID      *int64               `json:"task"`
	Status      models.IssueStatus   `json:"status,omitempty"`
	ReportedBy  int64                `json:"reported_by,omitempty"`
}

// IssueFilter narrows an issue listing. Every filter is ANDed after the
// visibility restriction.
type IssueFilter struct {
	Status        models.IssueStatus
	Category      models.IssueCategory
	Urgency       models.IssueUrgency
	CourseID      *int64
	ProjectID     *int64
	TaskID        *int64
	Cohort        string
	WeekNumber    *int
	ReportedBy    *int64
	AssignedTo    *int64
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Search        string
	Ordering      string
}

// IssueService owns the issue aggregate and its transition bookkeeping
type IssueService struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

func NewIssueService(db *sql.DB, logger *observability.Logger) *IssueService {
	return &IssueService{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

var issueColumns = []string{
	"i.id", "i.title", "i.description", "i.category", "i.urgency", "i.status", "i.cohort", "i.week_number",
	"i.course_id", "i.project_id", "i.task_id", "i.reported_by", "i.assigned_to",
	"i.created_at", "i.updated_at", "i.first_response_at", "i.resolved_at",
}

var issueSummaryColumns = append(append([]string{}, issueColumns...),
	"co.name", "pr.name", "tk.title",
	"rep.username", "rep.first_name", "rep.last_name", "rep.role", "rep.cohort",
	"asg.username", "asg.first_name", "asg.last_name", "asg.role", "asg.cohort",
	"(SELECT COUNT(*) FROM comments cc WHERE cc.issue_id = i.id)",
	"(SELECT COUNT(*) FROM attachments ac WHERE ac.issue_id = i.id)",
)

const issueSummaryFrom = `issues i
	JOIN courses co ON co.id = i.course_id
	JOIN projects pr ON pr.id = i.project_id
	LEFT JOIN tasks tk ON tk.id = i.task_id
	JOIN users rep ON rep.id = i.reported_by
	LEFT JOIN users asg ON asg.id = i.assigned_to`

var issueOrdering = ordering{
	"created_at": "i.created_at",
	"updated_at": "i.updated_at",
	"status":     "i.status",
	"urgency":    "i.urgency",
}

func issueDest(is *models.Issue) []interface{} {
	return []interface{}{
		&is.ID, &is.Title, &is.Description, &is.Category, &is.Urgency, &is.Status, &is.Cohort, &is.WeekNumber,
		&is.CourseID, &is.ProjectID, &is.TaskID, &is.ReportedBy, &is.AssignedTo,
		&is.CreatedAt, &is.UpdatedAt, &is.FirstResponseAt, &is.ResolvedAt,
	}
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	is := &models.Issue{}
	if err := row.Scan(issueDest(is)...); err != nil {
		return nil, err
	}
	return is, nil
}

func scanIssueSummary(row rowScanner) (*models.IssueSummary, error) {
	s := &models.IssueSummary{}
	var asgUsername, asgFirst, asgLast, asgRole, asgCohort sql.NullString
	dest := append(issueDest(&s.Issue),
		&s.CourseName, &s.ProjectName, &s.TaskTitle,
		&s.Reporter.Username, &s.Reporter.FirstName, &s.Reporter.LastName, &s.Reporter.Role, &s.Reporter.Cohort,
		&asgUsername, &asgFirst, &asgLast, &asgRole, &asgCohort,
		&s.CommentsCount, &s.AttachmentsCount,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	s.Reporter.ID = s.ReportedBy
	if s.AssignedTo.Valid && asgUsername.Valid {
		s.Assignee = &models.UserBrief{
			ID:        s.AssignedTo.Int64,
			Username:  asgUsername.String,
			FirstName: asgFirst.String,
			LastName:  asgLast.String,
			Role:      models.Role(asgRole.String),
			Cohort:    asgCohort.String,
		}
	}
	return s, nil
}

// loadIssue reads one issue without any visibility restriction. Companion
// writes use it so that a missing issue and a forbidden one stay distinct.
func loadIssue(ctx context.Context, q querier, id int64, forUpdate bool) (*models.Issue, error) {
	b := psql.Select(issueColumns...).From("issues i").Where(sq.Eq{"i.id": id})
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build issue query")
	}
	issue, err := scanIssue(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.NotFoundf("Issue not found.")
		}
		return nil, contextutils.WrapError(err, "failed to load issue")
	}
	return issue, nil
}

func (f IssueFilter) conditions() []sq.Sqlizer {
	var out []sq.Sqlizer
	if f.Status != "" {
		out = append(out, sq.Eq{"i.status": f.Status})
	}
	if f.Category != "" {
		out = append(out, sq.Eq{"i.category": f.Category})
	}
	if f.Urgency != "" {
		out = append(out, sq.Eq{"i.urgency": f.Urgency})
	}
	if f.CourseID != nil {
		out = append(out, sq.Eq{"i.course_id": *f.CourseID})
	}
	if f.ProjectID != nil {
		out = append(out, sq.Eq{"i.project_id": *f.ProjectID})
	}
	if f.TaskID != nil {
		out = append(out, sq.Eq{"i.task_id": *f.TaskID})
	}
	if f.Cohort != "" {
		out = append(out, sq.Eq{"i.cohort": f.Cohort})
	}
	if f.WeekNumber != nil {
		out = append(out, sq.Eq{"i.week_number": *f.WeekNumber})
	}
	if f.ReportedBy != nil {
		out = append(out, sq.Eq{"i.reported_by": *f.ReportedBy})
	}
	if f.AssignedTo != nil {
		out = append(out, sq.Eq{"i.assigned_to": *f.AssignedTo})
	}
	if f.CreatedAfter != nil {
		out = append(out, sq.GtOrEq{"i.created_at": *f.CreatedAfter})
	}
	if f.CreatedBefore != nil {
		out = append(out, sq.LtOrEq{"i.created_at": *f.CreatedBefore})
	}
	if s := ilikeAny(f.Search, "i.title", "i.description"); s != nil {
		out = append(out, s)
	}
	return out
}

// ListIssues returns one page of the issues actor may see
func (s *IssueService) ListIssues(ctx context.Context, actor visibility.Actor, filter IssueFilter, page PageRequest) (result0 []models.IssueSummary, result1 int, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "list_issues",
		observability.AttributeUserID(actor.ID),
		observability.AttributeRole(string(actor.Role)),
		observability.AttributePage(page.Page),
		observability.AttributePageSize(page.PageSize),
	)
	defer observability.FinishSpan(span, &err)

	where := visibility.Scope(actor, visibility.KindIssue, filter.conditions()...)
	total, err := count(ctx, s.db, "issues i", where)
	if err != nil {
		return nil, 0, err
	}

	b := psql.Select(issueSummaryColumns...).From(issueSummaryFrom).Where(where).
		OrderBy(issueOrdering.resolve(filter.Ordering, "-created_at", "i.id"))
	issues, err := listRows(ctx, s.db, page.apply(b), scanIssueSummary)
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

// GetIssue returns the issue with its companions. An issue outside the
// actor's visibility reads as not found.
func (s *IssueService) GetIssue(ctx context.Context, actor visibility.Actor, id int64) (result0 *models.IssueDetail, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "get_issue",
		observability.AttributeUserID(actor.ID),
		observability.AttributeIssueID(id),
	)
	defer observability.FinishSpan(span, &err)

	return s.detail(ctx, s.db, visibility.Scope(actor, visibility.KindIssue, sq.Eq{"i.id": id}))
}

func (s *IssueService) detail(ctx context.Context, q querier, where sq.Sqlizer) (*models.IssueDetail, error) {
	summary, err := getRow(ctx, q, psql.Select(issueSummaryColumns...).From(issueSummaryFrom).Where(where),
		scanIssueSummary, "Issue not found.")
	if err != nil {
		return nil, err
	}
	d := &models.IssueDetail{IssueSummary: *summary}

	if d.Comments, err = listRows(ctx, q, psql.Select(commentColumns...).From(commentFrom).
		Where(sq.Eq{"c.issue_id": d.ID}).OrderBy("c.created_at ASC", "c.id ASC"), scanComment); err != nil {
		return nil, err
	}
	if d.Attachments, err = listRows(ctx, q, psql.Select(attachmentColumns...).From(attachmentFrom).
		Where(sq.Eq{"a.issue_id": d.ID}).OrderBy("a.uploaded_at DESC", "a.id DESC"), scanAttachment); err != nil {
		return nil, err
	}
	if d.History, err = listRows(ctx, q, psql.Select(historyColumns...).From(historyFrom).
		Where(sq.Eq{"h.issue_id": d.ID}).OrderBy("h.timestamp DESC", "h.id DESC"), scanHistoryEntry); err != nil {
		return nil, err
	}
	if d.Feedback, err = loadFeedback(ctx, q, d.ID); err != nil {
		return nil, err
	}
	return d, nil
}

var historyColumns = []string{"h.id", "h.issue_id", "h.action", "h.performed_by", "h.timestamp", "u.username"}

const historyFrom = "issue_history h LEFT JOIN users u ON u.id = h.performed_by"

func scanHistoryEntry(row rowScanner) (*models.IssueHistoryEntry, error) {
	h := &models.IssueHistoryEntry{}
	if err := row.Scan(&h.ID, &h.IssueID, &h.Action, &h.PerformedBy, &h.Timestamp, &h.PerformedByUsername); err != nil {
		return nil, err
	}
	return h, nil
}

// validateCreate checks field shape with the struct tags, then the
// course/project/task chain against the catalog
func (s *IssueService) validateCreate(ctx context.Context, in *IssueInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := contextutils.ValidateStruct(in); err != nil {
		return err
	}

	var courseID int64
	err := s.db.QueryRowContext(ctx, `SELECT course_id FROM projects WHERE id = $1`, in.ProjectID).Scan(&courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return contextutils.Validationf("project", "Invalid pk \"%d\" - object does not exist.", in.ProjectID)
	} else if err != nil {
		return contextutils.WrapError(err, "failed to load project")
	}
	if courseID != in.CourseID {
		return contextutils.Validationf("project", "Project does not belong to the selected course.")
	}

	if in.TaskID != nil {
		var projectID int64
		err := s.db.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id = $1`, *in.TaskID).Scan(&projectID)
		if errors.Is(err, sql.ErrNoRows) {
			return contextutils.Validationf("task", "Invalid pk \"%d\" - object does not exist.", *in.TaskID)
		} else if err != nil {
			return contextutils.WrapError(err, "failed to load task")
		}
		if projectID != in.ProjectID {
			return contextutils.Validationf("task", "Task does not belong to the selected project.")
		}
	}
	return nil
}

// CreateIssue stores a new open issue reported by actor and notifies the
// cohort's mentors and every admin.
func (s *IssueService) CreateIssue(ctx context.Context, actor visibility.Actor, in IssueInput) (result0 *models.IssueDetail, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "create_issue",
		observability.AttributeUserID(actor.ID),
		observability.AttributeRole(string(actor.Role)),
	)
	defer observability.FinishSpan(span, &err)

	if in.Cohort = strings.TrimSpace(in.Cohort); in.Cohort == "" {
		in.Cohort = actor.Cohort
	}
	if in.Cohort == "" {
		return nil, contextutils.Validationf("cohort", "This field is required.")
	}
	if err = s.validateCreate(ctx, &in); err != nil {
		return nil, err
	}

	issue := models.Issue{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Urgency:     in.Urgency,
		Status:      in.Status,
		Cohort:      in.Cohort,
		WeekNumber:  in.WeekNumber,
		CourseID:    in.CourseID,
		ProjectID:   in.ProjectID,
		TaskID:      models.NullInt64(in.TaskID),
		ReportedBy:  in.ReportedBy,
	}
	tracker.PrepareCreate(&issue, actor.ID, s.now())

	var effects tracker.Effects
	err = database.WithTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		query, args, err := psql.Insert("issues").
			Columns("title", "description", "category", "urgency", "status", "cohort", "week_number",
				"course_id", "project_id", "task_id", "reported_by", "assigned_to", "created_at", "updated_at").
			Values(issue.Title, issue.Description, issue.Category, issue.Urgency, issue.Status, issue.Cohort, issue.WeekNumber,
				issue.CourseID, issue.ProjectID, issue.TaskID, issue.ReportedBy, issue.AssignedTo, issue.CreatedAt, issue.UpdatedAt).
			Suffix("RETURNING id").ToSql()
		if err != nil {
			return contextutils.WrapError(err, "failed to build issue insert")
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&issue.ID); err != nil {
			if database.IsForeignKeyViolation(err) {
				return contextutils.Validationf("course", "Referenced object does not exist.")
			}
			return contextutils.WrapError(err, "failed to insert issue")
		}

		audience, err := loadAudience(ctx, tx, issue.Cohort)
		if err != nil {
			return err
		}
		effects = tracker.PlanCreate(&issue, audience)
		return applyEffects(ctx, tx, effects)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(observability.AttributeIssueID(issue.ID), observability.AttributeCohort(issue.Cohort))
	observability.RecordIssueCreated(ctx, string(issue.Category))
	recordEffects(ctx, effects)
	s.logger.Info(ctx, "Issue created", map[string]interface{}{
		"issue_id":      issue.ID,
		"cohort":        issue.Cohort,
		"notifications": len(effects.Notifications),
	})

	return s.detail(ctx, s.db, sq.Eq{"i.id": issue.ID})
}

// UpdateIssue applies patch under a row lock, then writes the history rows
// and notifications the observed change calls for. A patch that changes
// nothing still bumps updated_at but produces no effects.
func (s *IssueService) UpdateIssue(ctx context.Context, actor visibility.Actor, id int64, patch tracker.Patch) (result0 *models.IssueDetail, err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "update_issue",
		observability.AttributeUserID(actor.ID),
		observability.AttributeIssueID(id),
	)
	defer observability.FinishSpan(span, &err)

	if patch.Status != nil && !patch.Status.Valid() {
		return nil, contextutils.Validationf("status", "\"%s\" is not a valid choice.", *patch.Status)
	}

	var (
		after   models.Issue
		cs      tracker.Changeset
		effects tracker.Effects
	)
	err = database.WithTx(ctx, s.db, s.logger, func(tx *sql.Tx) error {
		before, err := loadIssue(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !visibility.CanSee(actor, before) {
			return contextutils.NotFoundf("Issue not found.")
		}

		var assigneeName string
		if patch.AssignedTo != nil && patch.AssignedTo.Valid {
			err := tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id = $1`, patch.AssignedTo.Int64).Scan(&assigneeName)
			if errors.Is(err, sql.ErrNoRows) {
				return contextutils.Validationf("assigned_to", "Invalid pk \"%d\" - object does not exist.", patch.AssignedTo.Int64)
			} else if err != nil {
				return contextutils.WrapError(err, "failed to load assignee")
			}
		}

		after, cs = tracker.Transition(*before, patch, s.now())

		query, args, err := psql.Update("issues").SetMap(map[string]interface{}{
			"status":            after.Status,
			"assigned_to":       after.AssignedTo,
			"updated_at":        after.UpdatedAt,
			"first_response_at": after.FirstResponseAt,
			"resolved_at":       after.ResolvedAt,
		}).Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return contextutils.WrapError(err, "failed to build issue update")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return contextutils.WrapError(err, "failed to update issue")
		}

		var audience tracker.Audience
		if cs.Status != nil && cs.Status.To == models.StatusResolved {
			if audience, err = loadAudience(ctx, tx, after.Cohort); err != nil {
				return err
			}
		}
		effects = tracker.PlanUpdate(&after, cs, actor.ID, assigneeName, audience)
		return applyEffects(ctx, tx, effects)
	})
	if err != nil {
		return nil, err
	}

	if cs.Status != nil {
		observability.RecordTransition(ctx, string(cs.Status.To))
		span.SetAttributes(observability.AttributeStatus(string(cs.Status.To)))
	}
	recordEffects(ctx, effects)
	if !cs.IsEmpty() {
		s.logger.Info(ctx, "Issue updated", map[string]interface{}{
			"issue_id":      id,
			"history_rows":  len(effects.History),
			"notifications": len(effects.Notifications),
		})
	}

	return s.detail(ctx, s.db, sq.Eq{"i.id": id})
}

// DeleteIssue removes an issue and, through cascades, its companions
func (s *IssueService) DeleteIssue(ctx context.Context, actor visibility.Actor, id int64) (err error) {
	ctx, span := observability.TraceIssueFunction(ctx, "delete_issue",
		observability.AttributeUserID(actor.ID),
		observability.AttributeIssueID(id),
	)
	defer observability.FinishSpan(span, &err)

	if actor.Role != models.RoleAdmin {
		return contextutils.Forbiddenf("Only admins can delete issues.")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete issue")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contextutils.NotFoundf("Issue not found.")
	}
	s.logger.Warn(ctx, "Issue deleted", map[string]interface{}{"issue_id": id, "user_id": actor.ID})
	return nil
}
