package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/api/middleware"
	"github.com/adamscao/shotserver/internal/api/response"
	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/service"
	"github.com/adamscao/shotserver/internal/session"
)

// AuthHandler handles login, logout and session checks
type AuthHandler struct {
	auth     *service.Authenticator
	sessions *session.Manager
	users    middleware.UserLookup
	audit    *service.Auditor
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth *service.Authenticator, sessions *session.Manager, users middleware.UserLookup, audit *service.Auditor) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		users:    users,
		audit:    audit,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	TOTP     string `json:"totp" form:"totp"`
}

// Login authenticates a user and establishes a session
// POST /login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	// A malformed body is treated like missing credentials so it still counts toward lockout
	_ = c.ShouldBind(&req)

	user, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
		TOTPCode: req.TOTP,
		IP:       response.GetClientIP(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.sessions.Establish(c.Writer, c.Request, user.ID); err != nil {
		response.Error(c, apperr.Internal(err))
		return
	}

	response.RespondSuccess(c, gin.H{
		"status":  "success",
		"message": "Login successful",
		"user":    user,
	})
}

// Logout clears the session
// GET /logout
func (h *AuthHandler) Logout(c *gin.Context) {
	user := middleware.CurrentUser(c)

	if err := h.sessions.Destroy(c.Writer, c.Request); err != nil {
		response.Error(c, apperr.Internal(err))
		return
	}

	h.audit.Record(c.Request.Context(), service.UserRef(user.ID), models.ActionLogout, response.GetClientIP(c), "")

	response.RespondSuccess(c, gin.H{
		"status":  "success",
		"message": "Logged out",
	})
}

// CheckAuth reports whether the request carries a live session
// GET /check-auth
func (h *AuthHandler) CheckAuth(c *gin.Context) {
	userID, ok := h.sessions.Lookup(c.Request)
	if !ok {
		response.RespondSuccess(c, gin.H{"authenticated": false})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil || !user.IsActive() || !user.IsApproved {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("failed to load session user")
		}
		response.RespondSuccess(c, gin.H{"authenticated": false})
		return
	}

	response.RespondSuccess(c, gin.H{
		"authenticated": true,
		"user":          user,
	})
}
