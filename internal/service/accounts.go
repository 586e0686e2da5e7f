package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/auth"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/filestore"
	"github.com/adamscao/shotserver/internal/guard"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/policy"
)

// BootstrapInput describes an administrator created from the CLI
type BootstrapInput struct {
	Username     string
	Password     string
	Email        string
	GenerateTOTP bool
	Force        bool
}

// Accounts implements administrator account management
type Accounts struct {
	users      *repository.UserRepository
	requests   *repository.RegistrationRepository
	files      *filestore.Store
	lockout    *guard.LockoutGuard
	validator  *policy.Validator
	audit      *Auditor
	bcryptCost int
	log        zerolog.Logger
	now        func() time.Time
}

// NewAccounts creates the account management service
func NewAccounts(
	users *repository.UserRepository,
	requests *repository.RegistrationRepository,
	files *filestore.Store,
	lockout *guard.LockoutGuard,
	validator *policy.Validator,
	audit *Auditor,
	bcryptCost int,
	log zerolog.Logger,
) *Accounts {
	return &Accounts{
		users:      users,
		requests:   requests,
		files:      files,
		lockout:    lockout,
		validator:  validator,
		audit:      audit,
		bcryptCost: bcryptCost,
		log:        log.With().Str("component", "accounts").Logger(),
		now:        time.Now,
	}
}

// User returns one account
func (a *Accounts) User(ctx context.Context, id int64) (*models.User, error) {
	user, err := a.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// ListUsers lists every account with its storage usage
func (a *Accounts) ListUsers(ctx context.Context) ([]models.UserWithUsage, error) {
	users, err := a.users.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	out := make([]models.UserWithUsage, 0, len(users))
	for _, u := range users {
		size, count, err := a.files.For(u.ID).Usage()
		if err != nil {
			// A broken sandbox should not hide the account listing
			a.log.Warn().Err(err).Int64("user_id", u.ID).Msg("failed to compute storage usage")
		}
		out = append(out, models.UserWithUsage{User: u, StorageBytes: size, ScreenshotCount: count})
	}
	return out, nil
}

// SetStatus activates or disables an account. The last active
// administrator cannot be disabled.
func (a *Accounts) SetStatus(ctx context.Context, actor *models.User, userID int64, status, ip string) (*models.User, error) {
	if status != models.StatusActive && status != models.StatusDisabled {
		return nil, apperr.Validation("Invalid status %q: expected active or disabled", status)
	}

	err := a.users.SetStatus(ctx, userID, status)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User %d not found", userID)
	}
	if errors.Is(err, repository.ErrLastActiveAdmin) {
		return nil, apperr.Forbidden("Cannot disable the last active administrator")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	a.audit.Record(ctx, UserRef(actor.ID), models.ActionUserStatusChange, ip,
		fmt.Sprintf("user_id=%d status=%s", userID, status))

	return a.User(ctx, userID)
}

// ToggleAccess flips an account between active and disabled
func (a *Accounts) ToggleAccess(ctx context.Context, actor *models.User, userID int64, ip string) (*models.User, error) {
	user, err := a.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := models.StatusDisabled
	if !user.IsActive() {
		next = models.StatusActive
	}
	return a.SetStatus(ctx, actor, userID, next, ip)
}

// Statistics aggregates account counts and storage
func (a *Accounts) Statistics(ctx context.Context) (*models.Statistics, error) {
	total, active, admins, err := a.users.Counts(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	pending, err := a.requests.CountPending(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	failed, err := a.audit.Count(ctx, models.ActionLoginFailed, a.now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	stats := &models.Statistics{
		TotalUsers:      total,
		ActiveUsers:     active,
		AdminUsers:      admins,
		PendingRequests: pending,
		FailedLogins24h: failed,
	}

	users, err := a.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		stats.StorageBytes += u.StorageBytes
		stats.TotalScreenshots += u.ScreenshotCount
	}
	return stats, nil
}

// BootstrapAdmin creates an administrator account. Unless Force is set it
// refuses when an active administrator already exists.
func (a *Accounts) BootstrapAdmin(ctx context.Context, in BootstrapInput) (*models.User, *auth.TOTPKey, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if err := policy.ValidateUsername(username); err != nil {
		return nil, nil, err
	}
	if err := a.validator.ValidatePassword(in.Password); err != nil {
		return nil, nil, err
	}
	if email != "" {
		if err := policy.ValidateEmail(email); err != nil {
			return nil, nil, err
		}
	}

	if !in.Force {
		n, err := a.users.CountActiveAdmins(ctx)
		if err != nil {
			return nil, nil, apperr.Internal(err)
		}
		if n > 0 {
			return nil, nil, apperr.Conflict("An active administrator already exists (use --force to add another)")
		}
	}

	hash, err := auth.HashPassword(in.Password, a.bcryptCost)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		IsAdmin:      true,
		IsApproved:   true,
		Status:       models.StatusActive,
	}

	var key *auth.TOTPKey
	if in.GenerateTOTP {
		if key, err = auth.GenerateTOTPSecret(username); err != nil {
			return nil, nil, apperr.Internal(err)
		}
		user.TOTPSecret = key.Secret
	}

	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, apperr.Conflict("Username %q is already taken", username)
		}
		return nil, nil, apperr.Internal(err)
	}

	if err := a.files.For(user.ID).Provision(); err != nil {
		a.log.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to provision sandbox")
	}

	a.audit.Record(ctx, UserRef(user.ID), models.ActionCreateAdmin, "local",
		fmt.Sprintf("username=%q totp=%t", username, in.GenerateTOTP))

	return user, key, nil
}

// BlockedIPs lists the login blacklist
func (a *Accounts) BlockedIPs() []guard.BlockedIP {
	return a.lockout.Blocked(a.now())
}

// UnblockIP releases a blacklisted IP
func (a *Accounts) UnblockIP(ctx context.Context, actor *models.User, blocked, ip string) error {
	if !a.lockout.Release(blocked) {
		return apperr.NotFound("IP %s is not blocked", blocked)
	}

	a.audit.Record(ctx, UserRef(actor.ID), models.ActionUnblockIP, ip, "ip="+blocked)
	a.log.Info().Str("ip", blocked).Str("admin", actor.Username).Msg("ip released from blacklist")
	return nil
}
