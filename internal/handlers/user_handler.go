package handlers

import (
	"net/http"

	"issuetracker/internal/config"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-gonic/gin"
)

// UserHandler serves the account endpoints
type UserHandler struct {
	userService services.UserServiceInterface
	pagination  config.PaginationConfig
	logger      *observability.Logger
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *UserHandler {
	return &UserHandler{userService: userService, pagination: cfg.Pagination, logger: logger}
}

type passwordChangeRequest struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

// ListUsers is mentor/admin only
func (h *UserHandler) ListUsers(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_users")
	defer observability.FinishSpan(span, nil)

	q := newQueryFilters(c)
	filter := services.UserFilter{Role: q.str("role"), Cohort: q.str("cohort"), Search: q.str("search")}
	page := pageRequest(c, h.pagination)

	users, total, err := h.userService.ListUsers(ctx, filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	writePage(c, users, total, page)
}

// Me returns the authenticated account
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	user, err := h.userService.GetUserByID(c.Request.Context(), actor.ID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetUser lets students read only themselves
func (h *UserHandler) GetUser(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if id != actor.ID && !actor.Role.IsStaff() {
		HandleAppError(c, contextutils.Forbiddenf("You do not have permission to perform this action."))
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser applies a partial update; role and cohort changes are checked
// by the service
func (h *UserHandler) UpdateUser(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_user")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch services.UserPatch
	if !bindJSON(c, &patch) {
		return
	}

	user, err := h.userService.UpdateUser(ctx, actor, id, patch)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser is admin only
func (h *UserHandler) DeleteUser(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_user")
	defer observability.FinishSpan(span, nil)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.userService.DeleteUser(ctx, id); err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "User deleted", map[string]interface{}{"user_id": id})
	c.Status(http.StatusNoContent)
}

// ChangePassword changes the caller's own password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "change_password")
	defer observability.FinishSpan(span, nil)

	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req passwordChangeRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userService.ChangePassword(ctx, actor.ID, req.OldPassword, req.NewPassword, req.NewPasswordConfirm); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated successfully"})
}
