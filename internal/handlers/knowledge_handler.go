package handlers

import (
	"net/http"

	"issuetracker/internal/config"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"

	"github.com/gin-gonic/gin"
)

// KnowledgeHandler serves knowledge base articles
type KnowledgeHandler struct {
	knowledge  services.KnowledgeServiceInterface
	pagination config.PaginationConfig
	logger     *observability.Logger
}

func NewKnowledgeHandler(knowledge services.KnowledgeServiceInterface, cfg *config.Config, logger *observability.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge, pagination: cfg.Pagination, logger: logger}
}

func (h *KnowledgeHandler) ListArticles(c *gin.Context) {
	q := newQueryFilters(c)
	filter := services.ArticleFilter{
		RelatedIssue: q.int64("related_issue"),
		Tags:         q.str("tags"),
		Search:       q.str("search"),
		Ordering:     q.str("ordering"),
	}
	if !q.ok() {
		return
	}
	page := pageRequest(c, h.pagination)

	items, total, err := h.knowledge.ListArticles(c.Request.Context(), filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, mapSlice(items, convertArticle), total, page)
}

func (h *KnowledgeHandler) GetArticle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	article, err := h.knowledge.GetArticle(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertArticle(*article))
}

func (h *KnowledgeHandler) CreateArticle(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var in services.ArticleInput
	if !bindJSON(c, &in) {
		return
	}
	article, err := h.knowledge.CreateArticle(c.Request.Context(), actor, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertArticle(*article))
}

func (h *KnowledgeHandler) UpdateArticle(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.ArticleInput
	if !bindJSON(c, &in) {
		return
	}
	article, err := h.knowledge.UpdateArticle(c.Request.Context(), actor, id, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertArticle(*article))
}

func (h *KnowledgeHandler) DeleteArticle(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.knowledge.DeleteArticle(c.Request.Context(), actor, id); err != nil {
		HandleAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
