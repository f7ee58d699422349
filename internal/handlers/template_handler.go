package handlers

import (
	"net/http"

	"issuetracker/internal/config"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"

	"github.com/gin-gonic/gin"
)

// TemplateHandler serves issue templates
type TemplateHandler struct {
	templates  services.TemplateServiceInterface
	pagination config.PaginationConfig
	logger     *observability.Logger
}

func NewTemplateHandler(templates services.TemplateServiceInterface, cfg *config.Config, logger *observability.Logger) *TemplateHandler {
	return &TemplateHandler{templates: templates, pagination: cfg.Pagination, logger: logger}
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	q := newQueryFilters(c)
	filter := services.TemplateFilter{
		Category:  models.IssueCategory(q.str("category")),
		CreatedBy: q.int64("created_by"),
		Search:    q.str("search"),
		Ordering:  q.str("ordering"),
	}
	if !q.ok() {
		return
	}
	page := pageRequest(c, h.pagination)

	items, total, err := h.templates.ListTemplates(c.Request.Context(), filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, mapSlice(items, convertTemplate), total, page)
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tmpl, err := h.templates.GetTemplate(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertTemplate(*tmpl))
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var in services.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	tmpl, err := h.templates.CreateTemplate(c.Request.Context(), actor, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertTemplate(*tmpl))
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	tmpl, err := h.templates.UpdateTemplate(c.Request.Context(), actor, id, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertTemplate(*tmpl))
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.templates.DeleteTemplate(c.Request.Context(), actor, id); err != nil {
		HandleAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
