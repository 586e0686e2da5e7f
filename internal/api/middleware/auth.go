package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/api/response"
	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/session"
)

const userKey = "user"

// UserLookup loads the account behind a session
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// RequireAuthenticated rejects requests without a live session for an
// active account and refreshes the session on success
func RequireAuthenticated(sessions *session.Manager, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := sessions.Lookup(c.Request)
		if !ok {
			response.Abort(c, apperr.Unauthorized("", "Authentication required"))
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && (!user.IsActive() || !user.IsApproved)) {
			_ = sessions.Destroy(c.Writer, c.Request)
			response.Abort(c, apperr.Unauthorized("", "Authentication required"))
			return
		}
		if err != nil {
			response.Abort(c, apperr.Internal(err))
			return
		}

		if err := sessions.Touch(c.Writer, c.Request); err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("failed to refresh session")
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// RequireAdmin rejects authenticated users without administrator rights.
// It must run after RequireAuthenticated.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Abort(c, apperr.Unauthorized("", "Authentication required"))
			return
		}
		if !user.IsAdmin {
			response.Abort(c, apperr.Forbidden("Admin privileges required"))
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil outside the auth gate
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
