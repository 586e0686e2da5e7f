package models

import "time"

// User status values
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User represents a user account
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // Never expose password hash in JSON
	TOTPSecret   string     `json:"-"` // Never expose TOTP secret in JSON
	Email        string     `json:"email,omitempty"`
	IsAdmin      bool       `json:"is_admin"`
	IsApproved   bool       `json:"is_approved"`
	Status       string     `json:"status"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive reports whether the account may use the service
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// UserWithUsage is a user listing row for administrators
type UserWithUsage struct {
	*User
	StorageBytes    int64 `json:"storage_bytes"`
	ScreenshotCount int   `json:"screenshot_count"`
}

// Statistics aggregates account and storage counters
type Statistics struct {
	TotalUsers       int   `json:"total_users"`
	ActiveUsers      int   `json:"active_users"`
	AdminUsers       int   `json:"admin_users"`
	PendingRequests  int   `json:"pending_requests"`
	TotalScreenshots int   `json:"total_screenshots"`
	StorageBytes     int64 `json:"storage_bytes"`
	FailedLogins24h  int   `json:"failed_logins_24h"`
}
