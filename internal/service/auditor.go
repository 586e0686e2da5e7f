// Package service implements the account workflows on top of the
// repositories, the login guards and the file store.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/models"
)

// Auditor appends to the audit log. Write failures are logged and swallowed
// so they never fail the request that triggered them.
type Auditor struct {
	repo *repository.AuditRepository
	log  zerolog.Logger
}

// NewAuditor creates a new auditor
func NewAuditor(repo *repository.AuditRepository, log zerolog.Logger) *Auditor {
	return &Auditor{
		repo: repo,
		log:  log.With().Str("component", "audit").Logger(),
	}
}

// Record appends one entry; userID is nil for pre-auth events
func (a *Auditor) Record(ctx context.Context, userID *int64, action, ip, details string) {
	entry := &models.AuditEntry{
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: ip,
	}

	// The entry is written even if the client has gone away
	if err := a.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		a.log.Error().Err(err).
			Str("action", action).
			Str("ip", ip).
			Str("details", details).
			Msg("failed to write audit entry")
	}
}

// List returns recent entries, newest first
func (a *Auditor) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	entries, err := a.repo.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return entries, nil
}

// Count returns how many entries with action were written since the given time
func (a *Auditor) Count(ctx context.Context, action string, since time.Time) (int, error) {
	n, err := a.repo.CountByAction(ctx, action, since)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// UserRef returns a pointer suitable for AuditEntry.UserID
func UserRef(id int64) *int64 {
	return &id
}
