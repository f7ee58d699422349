package handlers

import (
	"net/http"

	"issuetracker/internal/config"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"

	"github.com/gin-gonic/gin"
)

// CommentHandler serves /comments. Creation lives on the issue routes.
type CommentHandler struct {
	comments   services.CommentServiceInterface
	pagination config.PaginationConfig
	logger     *observability.Logger
}

func NewCommentHandler(comments services.CommentServiceInterface, cfg *config.Config, logger *observability.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, pagination: cfg.Pagination, logger: logger}
}

func (h *CommentHandler) ListComments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	q := newQueryFilters(c)
	filter := services.CommentFilter{IssueID: q.int64("issue"), UserID: q.int64("user")}
	if !q.ok() {
		return
	}
	page := pageRequest(c, h.pagination)

	items, total, err := h.comments.ListComments(c.Request.Context(), actor, filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, mapSlice(items, convertComment), total, page)
}

func (h *CommentHandler) GetComment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	comment, err := h.comments.GetComment(c.Request.Context(), actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertComment(*comment))
}

func (h *CommentHandler) UpdateComment(c *gin.Context) {
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
	comment, err := h.comments.UpdateComment(c.Request.Context(), actor, id, req.Content)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertComment(*comment))
}

func (h *CommentHandler) DeleteComment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.comments.DeleteComment(c.Request.Context(), actor, id); err != nil {
		HandleAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
