package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/adamscao/shotserver/internal/api/response"
	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/service"
)

// RegisterHandler handles account registration requests
type RegisterHandler struct {
	registration *service.Registration
}

// NewRegisterHandler creates a new register handler
func NewRegisterHandler(registration *service.Registration) *RegisterHandler {
	return &RegisterHandler{registration: registration}
}

// RegisterRequest represents an account registration request
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Email    string `json:"email" form:"email"`
}

// Register submits a pending registration request
// POST /register
func (h *RegisterHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, apperr.Validation("Invalid request body"))
		return
	}

	created, err := h.registration.Submit(c.Request.Context(), service.SubmitInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		IP:       response.GetClientIP(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.RespondSuccess(c, gin.H{
		"status":     created.Status,
		"message":    "Registration submitted; an administrator will review your request",
		"request_id": created.ID,
	})
}
