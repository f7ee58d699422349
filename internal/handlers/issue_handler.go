package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"issuetracker/internal/config"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	"issuetracker/internal/tracker"
	"issuetracker/internal/visibility"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// IssueHandler serves the issue aggregate and its nested comment and
// feedback creation routes
type IssueHandler struct {
	issues     services.IssueServiceInterface
	comments   services.CommentServiceInterface
	feedback   services.FeedbackServiceInterface
	pagination config.PaginationConfig
	baseURL    string
	logger     *observability.Logger
}

func NewIssueHandler(
	issues services.IssueServiceInterface,
	comments services.CommentServiceInterface,
	feedback services.FeedbackServiceInterface,
	cfg *config.Config,
	logger *observability.Logger,
) *IssueHandler {
	return &IssueHandler{
		issues:     issues,
		comments:   comments,
		feedback:   feedback,
		pagination: cfg.Pagination,
		baseURL:    cfg.Server.PublicBaseURL,
		logger:     logger,
	}
}

// optionalID tells an explicit null apart from an absent field
type optionalID struct {
	Set   bool
	Value sql.NullInt64
}

func (o *optionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = sql.NullInt64{}
		return nil
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	o.Value = sql.NullInt64{Int64: id, Valid: true}
	return nil
}

type issuePatchRequest struct {
	Status     *models.IssueStatus `json:"status"`
	AssignedTo optionalID          `json:"assigned_to"`
}

func (r issuePatchRequest) patch() tracker.Patch {
	p := tracker.Patch{Status: r.Status}
	if r.AssignedTo.Set {
		v := r.AssignedTo.Value
		p.AssignedTo = &v
	}
	return p
}

func (h *IssueHandler) CreateIssue(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_issue")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var in services.IssueInput
	if !bindJSON(c, &in) {
		return
	}

	issue, err := h.issues.CreateIssue(ctx, actor, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(observability.AttributeIssueID(issue.ID))
	c.JSON(http.StatusCreated, convertIssueDetail(c, h.baseURL, issue))
}

// issueFilter reads the list filters shared by the three listing routes
func issueFilter(c *gin.Context) (services.IssueFilter, bool) {
	q := newQueryFilters(c)
	filter := services.IssueFilter{
		Status:        models.IssueStatus(q.str("status")),
		Category:      models.IssueCategory(q.str("category")),
		Urgency:       models.IssueUrgency(q.str("urgency")),
		CourseID:      q.int64("course"),
		ProjectID:     q.int64("project"),
		TaskID:        q.int64("task"),
		Cohort:        q.str("cohort"),
		WeekNumber:    q.int("week_number"),
		ReportedBy:    q.int64("reported_by"),
		AssignedTo:    q.int64("assigned_to"),
		CreatedAfter:  q.time("created_after"),
		CreatedBefore: q.time("created_before"),
		Search:        q.str("search"),
		Ordering:      q.str("ordering"),
	}
	return filter, q.ok()
}

func (h *IssueHandler) listIssues(c *gin.Context, scope func(*services.IssueFilter, visibility.Actor)) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_issues")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	filter, ok := issueFilter(c)
	if !ok {
		return
	}
	if scope != nil {
		scope(&filter, actor)
	}
	page := pageRequest(c, h.pagination)
	span.SetAttributes(observability.AttributePage(page.Page), attribute.String("issue.ordering", filter.Ordering))

	items, total, err := h.issues.ListIssues(ctx, actor, filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, mapSlice(items, convertIssueSummary), total, page)
}

func (h *IssueHandler) ListIssues(c *gin.Context) {
	h.listIssues(c, nil)
}

// MyIssues lists what the caller reported
func (h *IssueHandler) MyIssues(c *gin.Context) {
	h.listIssues(c, func(f *services.IssueFilter, a visibility.Actor) { f.ReportedBy = &a.ID })
}

// AssignedIssues lists what is assigned to the caller
func (h *IssueHandler) AssignedIssues(c *gin.Context) {
	h.listIssues(c, func(f *services.IssueFilter, a visibility.Actor) { f.AssignedTo = &a.ID })
}

func (h *IssueHandler) GetIssue(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	issue, err := h.issues.GetIssue(c.Request.Context(), actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertIssueDetail(c, h.baseURL, issue))
}

// UpdateIssue accepts status and assigned_to only; other fields are ignored
func (h *IssueHandler) UpdateIssue(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_issue")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req issuePatchRequest
	if !bindJSON(c, &req) {
		return
	}
	span.SetAttributes(observability.AttributeIssueID(id))

	issue, err := h.issues.UpdateIssue(ctx, actor, id, req.patch())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertIssueDetail(c, h.baseURL, issue))
}

func (h *IssueHandler) DeleteIssue(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.issues.DeleteIssue(c.Request.Context(), actor, id); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "Issue deleted", map[string]interface{}{"issue_id": id, "user_id": actor.ID})
	c.Status(http.StatusNoContent)
}

type commentRequest struct {
	Content string `json:"content"`
}

// AddComment is POST /issues/:id/comments
func (h *IssueHandler) AddComment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if !bindJSON(c, &req) {
		return
	}
	comment, err := h.comments.CreateComment(c.Request.Context(), actor, id, req.Content)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertComment(*comment))
}

// AddFeedback is POST /issues/:id/feedback
func (h *IssueHandler) AddFeedback(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "add_feedback")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.FeedbackInput
	if !bindJSON(c, &in) {
		return
	}
	fb, err := h.feedback.CreateFeedback(ctx, actor, id, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertFeedback(*fb))
}

// ListFeedback lists the feedback the caller can see
func (h *IssueHandler) ListFeedback(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	page := pageRequest(c, h.pagination)
	items, total, err := h.feedback.ListFeedback(c.Request.Context(), actor, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, mapSlice(items, convertFeedback), total, page)
}
