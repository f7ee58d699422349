package handlers

import (
	"context"
	"net/http"

	"issuetracker/internal/config"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-gonic/gin"
)

// CatalogHandler serves courses, projects and tasks. Reads are open to every
// authenticated user; writes are routed through RequireRole(admin).
type CatalogHandler struct {
	catalog    services.CatalogServiceInterface
	pagination config.PaginationConfig
	logger     *observability.Logger
}

func NewCatalogHandler(catalog services.CatalogServiceInterface, cfg *config.Config, logger *observability.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, pagination: cfg.Pagination, logger: logger}
}

// bindValid binds the body and runs the validate tags
func bindValid(c *gin.Context, v interface{}) bool {
	if !bindJSON(c, v) {
		return false
	}
	if err := contextutils.ValidateStruct(v); err != nil {
		HandleAppError(c, err)
		return false
	}
	return true
}

func (h *CatalogHandler) ListCourses(c *gin.Context) {
	page := pageRequest(c, h.pagination)
	items, total, err := h.catalog.ListCourses(c.Request.Context(), c.Query("search"), c.Query("ordering"), page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, items, total, page)
}

func (h *CatalogHandler) GetCourse(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	course, err := h.catalog.GetCourse(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *CatalogHandler) CreateCourse(c *gin.Context) {
	var in services.CourseInput
	if !bindValid(c, &in) {
		return
	}
	course, err := h.catalog.CreateCourse(c.Request.Context(), in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (h *CatalogHandler) UpdateCourse(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.CourseInput
	if !bindValid(c, &in) {
		return
	}
	course, err := h.catalog.UpdateCourse(c.Request.Context(), id, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (h *CatalogHandler) DeleteCourse(c *gin.Context) {
	h.deleteEntity(c, "course", h.catalog.DeleteCourse)
}

func (h *CatalogHandler) ListProjects(c *gin.Context) {
	q := newQueryFilters(c)
	filter := services.ProjectFilter{
		CourseID:   q.int64("course"),
		WeekNumber: q.int("week_number"),
		Search:     q.str("search"),
		Ordering:   q.str("ordering"),
	}
	if !q.ok() {
		return
	}
	page := pageRequest(c, h.pagination)
	items, total, err := h.catalog.ListProjects(c.Request.Context(), filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, items, total, page)
}

func (h *CatalogHandler) GetProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := h.catalog.GetProject(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *CatalogHandler) CreateProject(c *gin.Context) {
	var in services.ProjectInput
	if !bindValid(c, &in) {
		return
	}
	project, err := h.catalog.CreateProject(c.Request.Context(), in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *CatalogHandler) UpdateProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.ProjectInput
	if !bindValid(c, &in) {
		return
	}
	project, err := h.catalog.UpdateProject(c.Request.Context(), id, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *CatalogHandler) DeleteProject(c *gin.Context) {
	h.deleteEntity(c, "project", h.catalog.DeleteProject)
}

func (h *CatalogHandler) ListTasks(c *gin.Context) {
	q := newQueryFilters(c)
	filter := services.TaskFilter{
		ProjectID:  q.int64("project"),
		TaskNumber: q.int("task_number"),
		Search:     q.str("search"),
		Ordering:   q.str("ordering"),
	}
	if !q.ok() {
		return
	}
	page := pageRequest(c, h.pagination)
	items, total, err := h.catalog.ListTasks(c.Request.Context(), filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, items, total, page)
}

func (h *CatalogHandler) GetTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.catalog.GetTask(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *CatalogHandler) CreateTask(c *gin.Context) {
	var in services.TaskInput
	if !bindValid(c, &in) {
		return
	}
	task, err := h.catalog.CreateTask(c.Request.Context(), in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *CatalogHandler) UpdateTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.TaskInput
	if !bindValid(c, &in) {
		return
	}
	task, err := h.catalog.UpdateTask(c.Request.Context(), id, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *CatalogHandler) DeleteTask(c *gin.Context) {
	h.deleteEntity(c, "task", h.catalog.DeleteTask)
}

func (h *CatalogHandler) deleteEntity(c *gin.Context, entity string, del func(context.Context, int64) error) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := del(c.Request.Context(), id); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(c.Request.Context(), "Catalog entry deleted", map[string]interface{}{"entity": entity, "id": id})
	c.Status(http.StatusNoContent)
}
