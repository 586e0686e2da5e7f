package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/auth"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/guard"
	"github.com/adamscao/shotserver/internal/metrics"
	"github.com/adamscao/shotserver/internal/models"
)

// LoginInput carries one login attempt
type LoginInput struct {
	Username string
	Password string
	TOTPCode string
	IP       string
}

// Authenticator validates credentials against the user store and the lockout guard
type Authenticator struct {
	users   *repository.UserRepository
	lockout *guard.LockoutGuard
	audit   *Auditor
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(users *repository.UserRepository, lockout *guard.LockoutGuard, audit *Auditor, m *metrics.Metrics, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		users:   users,
		lockout: lockout,
		audit:   audit,
		metrics: m,
		log:     log.With().Str("component", "auth").Logger(),
		now:     time.Now,
	}
}

var errInvalidCredentials = apperr.Unauthorized(apperr.CodeInvalidCredentials, "Invalid username or password")

// Login checks one attempt. Every credential failure, including a blocked
// IP, yields the same InvalidCredentials error.
func (a *Authenticator) Login(ctx context.Context, in LoginInput) (*models.User, error) {
	now := a.now()

	if a.lockout.IsBlocked(in.IP, now) {
		a.metrics.LoginFailed(false)
		a.audit.Record(ctx, nil, models.ActionLoginFailed, in.IP, fmt.Sprintf("username=%q reason=ip_blocked", in.Username))
		return nil, errInvalidCredentials
	}
	if in.Username == "" || in.Password == "" {
		return nil, a.fail(ctx, in, now, "missing_credentials")
	}

	user, err := a.users.GetByUsername(ctx, in.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, a.fail(ctx, in, now, "unknown_user")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, a.fail(ctx, in, now, "bad_password")
	}

	// Correct credentials: account state failures do not count toward lockout
	if !user.IsApproved {
		a.audit.Record(ctx, nil, models.ActionLoginFailed, in.IP, fmt.Sprintf("username=%q reason=pending_approval", in.Username))
		return nil, apperr.Unauthorized(apperr.CodePendingApproval, "Account is pending administrator approval")
	}
	if !user.IsActive() {
		a.audit.Record(ctx, nil, models.ActionLoginFailed, in.IP, fmt.Sprintf("username=%q reason=account_disabled", in.Username))
		return nil, apperr.Unauthorized(apperr.CodeAccountDisabled, "Account is disabled")
	}

	if user.TOTPSecret != "" {
		valid, err := auth.ValidateTOTP(user.TOTPSecret, in.TOTPCode, now)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if !valid {
			return nil, a.fail(ctx, in, now, "bad_totp")
		}
	}

	a.lockout.Clear(in.IP)

	if err := a.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, apperr.Internal(err)
	}
	t := now.UTC()
	user.LastLogin = &t

	a.audit.Record(ctx, UserRef(user.ID), models.ActionLogin, in.IP, "")
	a.log.Info().Str("username", user.Username).Str("ip", in.IP).Msg("user logged in")

	return user, nil
}

func (a *Authenticator) fail(ctx context.Context, in LoginInput, now time.Time, reason string) error {
	blacklisted := a.lockout.RecordFailure(in.IP, now)
	a.metrics.LoginFailed(blacklisted)
	if blacklisted {
		a.log.Warn().Str("ip", in.IP).Msg("ip blacklisted after repeated login failures")
	}

	a.audit.Record(ctx, nil, models.ActionLoginFailed, in.IP, fmt.Sprintf("username=%q reason=%s", in.Username, reason))
	return errInvalidCredentials
}
