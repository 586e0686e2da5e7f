package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/shotserver/internal/api/middleware"
	"github.com/adamscao/shotserver/internal/api/response"
	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/service"
)

// AdminHandler handles administrative operations
type AdminHandler struct {
	registration *service.Registration
	accounts     *service.Accounts
	audit        *service.Auditor
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(registration *service.Registration, accounts *service.Accounts, audit *service.Auditor) *AdminHandler {
	return &AdminHandler{
		registration: registration,
		accounts:     accounts,
		audit:        audit,
	}
}

// SetStatusRequest represents a user status change
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PendingRequests lists pending registration requests
// GET /admin/pending-requests, GET /api/admin/registration-requests
func (h *AdminHandler) PendingRequests(c *gin.Context) {
	requests, err := h.registration.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondSuccess(c, requests)
}

// ApproveRequest approves a pending registration request
// POST /admin/approve-request/:id, POST /api/admin/registration-requests/:id/approve
func (h *AdminHandler) ApproveRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.registration.Approve(c.Request.Context(), id, middleware.CurrentUser(c), response.GetClientIP(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.RespondSuccess(c, gin.H{
		"status":  "success",
		"message": "Registration approved",
		"user":    user,
	})
}

// RejectRequest rejects a pending registration request
// POST /admin/reject-request/:id, POST /api/admin/registration-requests/:id/reject
func (h *AdminHandler) RejectRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.registration.Reject(c.Request.Context(), id, middleware.CurrentUser(c), response.GetClientIP(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.RespondSuccess(c, gin.H{
		"status":  "success",
		"message": "Registration rejected",
	})
}

// ListUsers lists all users with their storage usage
// GET /admin/users, GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondSuccess(c, users)
}

// ToggleAccess flips a user between active and disabled
// POST /admin/users/:id/toggle-access
func (h *AdminHandler) ToggleAccess(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.accounts.ToggleAccess(c.Request.Context(), middleware.CurrentUser(c), id, response.GetClientIP(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.RespondSuccess(c, gin.H{
		"status": "success",
		"user":   user,
	})
}

// SetStatus sets a user's status explicitly
// PUT /api/admin/users/:id/status
func (h *AdminHandler) SetStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperr.Validation("Invalid request body"))
		return
	}

	user, err := h.accounts.SetStatus(c.Request.Context(), middleware.CurrentUser(c), id, req.Status, response.GetClientIP(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.RespondSuccess(c, gin.H{
		"status": "success",
		"user":   user,
	})
}

// Statistics returns account and storage counters
// GET /api/admin/statistics
func (h *AdminHandler) Statistics(c *gin.Context) {
	stats, err := h.accounts.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondSuccess(c, stats)
}

// AuditLog lists recent audit entries
// GET /api/admin/audit-log?user_id=&action=&limit=
func (h *AdminHandler) AuditLog(c *gin.Context) {
	filter := models.AuditFilter{Action: c.Query("action")}

	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.Error(c, apperr.Validation("Invalid user_id"))
			return
		}
		filter.UserID = &id
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			response.Error(c, apperr.Validation("Invalid limit"))
			return
		}
		filter.Limit = limit
	}

	entries, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.RespondSuccess(c, entries)
}

// BlockedIPs lists blacklisted IPs
// GET /api/admin/blocked-ips
func (h *AdminHandler) BlockedIPs(c *gin.Context) {
	response.RespondSuccess(c, h.accounts.BlockedIPs())
}

// UnblockIP releases a blacklisted IP
// DELETE /api/admin/blocked-ips/:ip
func (h *AdminHandler) UnblockIP(c *gin.Context) {
	err := h.accounts.UnblockIP(c.Request.Context(), middleware.CurrentUser(c), c.Param("ip"), response.GetClientIP(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.RespondSuccess(c, gin.H{
		"status":  "success",
		"message": "IP released",
	})
}

// pathID parses the :id parameter, writing a 400 when it is malformed
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperr.Validation("Invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}
