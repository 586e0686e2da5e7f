package models

import "time"

// AuditEntry represents an append-only audit log entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id"` // nil for pre-auth events
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ip_address"`
	Timestamp time.Time `json:"timestamp"`
}

// Audit action constants
const (
	ActionLogin               = "LOGIN"
	ActionLoginFailed         = "LOGIN_FAILED"
	ActionLogout              = "LOGOUT"
	ActionRegistrationSubmit  = "REGISTRATION_SUBMIT"
	ActionRegistrationApprove = "REGISTRATION_APPROVE"
	ActionRegistrationReject  = "REGISTRATION_REJECT"
	ActionUserStatusChange    = "USER_STATUS_CHANGE"
	ActionCreateAdmin         = "CREATE_ADMIN"
	ActionUnblockIP           = "UNBLOCK_IP"
	ActionUpload              = "UPLOAD"
	ActionCreateFolder        = "CREATE_FOLDER"
	ActionDeleteFolder        = "DELETE_FOLDER"
	ActionStarFolder          = "STAR_FOLDER"
	ActionUnstarFolder        = "UNSTAR_FOLDER"
	ActionMoveScreenshot      = "MOVE_SCREENSHOT"
	ActionCopyScreenshot      = "COPY_SCREENSHOT"
	ActionDeleteScreenshot    = "DELETE_SCREENSHOT"
)

// AuditFilter narrows an audit log listing
type AuditFilter struct {
	UserID *int64
	Action string
	Limit  int
}
