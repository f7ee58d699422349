package handlers

import (
	"net/http"

	"issuetracker/internal/auth"
	"issuetracker/internal/middleware"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// AuthHandler handles authentication related HTTP requests
type AuthHandler struct {
	userService services.UserServiceInterface
	tokens      *auth.TokenManager
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService services.UserServiceInterface, tokens *auth.TokenManager, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		logger:      logger,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type tokenResponse struct {
	auth.TokenPair
	User *models.User `json:"user,omitempty"`
}

// Login handles user login requests. The response carries a token pair and
// the session cookie is set as well, so browser clients can skip the header.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "login")
	defer observability.FinishSpan(span, nil)

	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	span.SetAttributes(attribute.String("auth.username", req.Username))

	user, err := h.userService.AuthenticateUser(ctx, req.Username, req.Password)
	if err != nil {
		h.logger.Warn(ctx, "Authentication failed for user", map[string]interface{}{"username": req.Username})
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(observability.AttributeUserID(user.ID), observability.AttributeRole(string(user.Role)))

	pair, err := h.tokens.Issue(user)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to issue tokens"))
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UsernameKey, user.Username)
	if err := session.Save(); err != nil {
		h.logger.Error(ctx, "Failed to save session", err, map[string]interface{}{"user_id": user.ID})
		HandleAppError(c, contextutils.WrapError(err, "failed to create session"))
		return
	}

	c.JSON(http.StatusOK, tokenResponse{TokenPair: pair, User: user})
}

// Refresh exchanges a refresh token for a new pair. The account is reloaded
// so a deactivated user cannot keep refreshing.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "refresh")
	defer observability.FinishSpan(span, nil)

	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	claims, err := h.tokens.Parse(req.Refresh, auth.RefreshToken)
	if err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeUnauthorized,
			contextutils.SeverityWarn, "Token is invalid or expired", "", err))
		return
	}
	user, err := h.userService.GetUserByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	pair, err := h.tokens.Issue(user)
	if err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to issue tokens"))
		return
	}
	c.JSON(http.StatusOK, tokenResponse{TokenPair: pair})
}

// Logout clears the session cookie. Bearer tokens simply expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "logout")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to clear session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logout successful"})
}

// Register creates an account. Only admins reach it.
func (h *AuthHandler) Register(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "register")
	defer observability.FinishSpan(span, nil)

	var in services.CreateUserInput
	if !bindJSON(c, &in) {
		return
	}
	if in.Role == "" {
		in.Role = models.RoleStudent
	}
	if err := contextutils.ValidateStruct(in); err != nil {
		HandleAppError(c, err)
		return
	}

	user, err := h.userService.CreateUser(ctx, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	h.logger.Info(ctx, "User registered", map[string]interface{}{
		"user_id": user.ID, "username": user.Username, "role": string(user.Role),
	})
	c.JSON(http.StatusCreated, user)
}
