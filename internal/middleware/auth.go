// Package middleware provides authentication and authorization middleware for the Gin web framework.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"issuetracker/internal/auth"
	"issuetracker/internal/models"
	contextutils "issuetracker/internal/utils"
	"issuetracker/internal/visibility"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys for storing user information
const (
	// UserIDKey is the key used to store user ID in session
	UserIDKey = "user_id"
	// UsernameKey is the key used to store username in session
	UsernameKey = "username"
)

// actorKey is where RequireAuth leaves the visibility.Actor in the gin context
const actorKey = "actor"

// UserLookup resolves the account behind a session cookie
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

func unauthorized(c *gin.Context, message string) {
	appErr := contextutils.NewAppError(contextutils.ErrorCodeUnauthorized, contextutils.SeverityWarn, message, "")
	c.AbortWithStatusJSON(http.StatusUnauthorized, appErr.ToJSON())
}

// RequireAuth returns a middleware that requires authentication. A bearer
// access token wins; without an Authorization header the session cookie
// set at login is used instead. Either way the account is reloaded, since
// credentials outlive role changes and deactivation.
func RequireAuth(tokens *auth.TokenManager, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID int64

		if header := c.GetHeader("Authorization"); header != "" {
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				unauthorized(c, "Authorization header must be a Bearer token")
				return
			}
			claims, err := tokens.Parse(strings.TrimSpace(raw), auth.AccessToken)
			if err != nil {
				unauthorized(c, "Given token not valid for any token type")
				return
			}
			userID = claims.UserID
		} else {
			id, ok := sessionUserID(sessions.Default(c))
			if !ok {
				unauthorized(c, "Authentication credentials were not provided.")
				return
			}
			userID = id
		}

		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil || user == nil || !user.IsActive {
			unauthorized(c, "User not found or inactive")
			return
		}
		actor := visibility.ActorFromUser(user)

		c.Set(actorKey, actor)
		c.Set(UserIDKey, actor.ID)
		c.Set(UsernameKey, user.Username)
		c.Request = c.Request.WithContext(contextutils.WithUserID(c.Request.Context(), actor.ID))

		c.Next()
	}
}

// sessionUserID reads the user id stored at login. JSON-backed stores hand
// numbers back as float64.
func sessionUserID(session sessions.Session) (int64, bool) {
	switch v := session.Get(UserIDKey).(type) {
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case float64:
		return int64(v), v > 0
	}
	return 0, false
}

// RequireRole must run after RequireAuth
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			unauthorized(c, "Authentication credentials were not provided.")
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		appErr := contextutils.Forbiddenf("You do not have permission to perform this action.")
		c.AbortWithStatusJSON(http.StatusForbidden, appErr.ToJSON())
	}
}

// ActorFrom returns the actor RequireAuth stored on the request
func ActorFrom(c *gin.Context) (visibility.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return visibility.Actor{}, false
	}
	actor, ok := v.(visibility.Actor)
	return actor, ok
}

// SetActor is used by tests and by handlers that authenticate inline
func SetActor(c *gin.Context, actor visibility.Actor) {
	c.Set(actorKey, actor)
	c.Set(UserIDKey, actor.ID)
}
