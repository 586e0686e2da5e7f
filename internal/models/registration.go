package models

import "time"

// Registration request status values
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// RegistrationRequest represents a pending or resolved account request
type RegistrationRequest struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	PasswordHash      string     `json:"-"`
	Email             string     `json:"email"`
	Status            string     `json:"status"`
	RequestDate       time.Time  `json:"request_date"`
	AdminResponseDate *time.Time `json:"admin_response_date,omitempty"`
	AdminNotes        string     `json:"admin_notes,omitempty"`
}
