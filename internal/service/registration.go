package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/auth"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/filestore"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/policy"
)

// SubmitInput is a new account request
type SubmitInput struct {
	Username string
	Password string
	Email    string
	IP       string
}

// Registration runs the pending → approved/rejected account workflow
type Registration struct {
	users      *repository.UserRepository
	requests   *repository.RegistrationRepository
	files      *filestore.Store
	validator  *policy.Validator
	audit      *Auditor
	bcryptCost int
	log        zerolog.Logger
}

// NewRegistration creates the registration workflow
func NewRegistration(
	users *repository.UserRepository,
	requests *repository.RegistrationRepository,
	files *filestore.Store,
	validator *policy.Validator,
	audit *Auditor,
	bcryptCost int,
	log zerolog.Logger,
) *Registration {
	return &Registration{
		users:      users,
		requests:   requests,
		files:      files,
		validator:  validator,
		audit:      audit,
		bcryptCost: bcryptCost,
		log:        log.With().Str("component", "registration").Logger(),
	}
}

// Submit validates and stores a pending request
func (r *Registration) Submit(ctx context.Context, in SubmitInput) (*models.RegistrationRequest, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if err := r.validator.ValidateRegistration(username, in.Password, email); err != nil {
		return nil, err
	}

	exists, err := r.users.Exists(ctx, username)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if exists {
		return nil, apperr.Conflict("Username %q is already taken", username)
	}

	pending, err := r.requests.ExistsPending(ctx, username)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if pending {
		return nil, apperr.Conflict("A registration request for %q is already pending", username)
	}

	hash, err := auth.HashPassword(in.Password, r.bcryptCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	req := &models.RegistrationRequest{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
	}
	if err := r.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("A registration request for %q is already pending", username)
		}
		return nil, apperr.Internal(err)
	}

	r.audit.Record(ctx, nil, models.ActionRegistrationSubmit, in.IP,
		fmt.Sprintf("request=%d username=%q", req.ID, username))

	return req, nil
}

// ListPending lists requests awaiting a decision
func (r *Registration) ListPending(ctx context.Context) ([]*models.RegistrationRequest, error) {
	requests, err := r.requests.ListPending(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return requests, nil
}

// Approve creates the requested account and its sandbox
func (r *Registration) Approve(ctx context.Context, requestID int64, admin *models.User, ip string) (*models.User, error) {
	notes := fmt.Sprintf("approved by admin %s (id %d)", admin.Username, admin.ID)

	user, err := r.requests.Approve(ctx, requestID, notes)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Registration request %d not found or not pending", requestID)
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.Conflict("Username is already taken")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// The sandbox is recreated on first use if this fails
	if err := r.files.For(user.ID).Provision(); err != nil {
		r.log.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to provision sandbox")
	}

	r.audit.Record(ctx, UserRef(admin.ID), models.ActionRegistrationApprove, ip,
		fmt.Sprintf("request=%d username=%q user_id=%d", requestID, user.Username, user.ID))
	r.log.Info().Str("username", user.Username).Str("admin", admin.Username).Msg("registration approved")

	return user, nil
}

// Reject closes a pending request without creating an account
func (r *Registration) Reject(ctx context.Context, requestID int64, admin *models.User, ip string) error {
	notes := fmt.Sprintf("rejected by admin %s (id %d)", admin.Username, admin.ID)

	err := r.requests.Reject(ctx, requestID, notes)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Registration request %d not found or not pending", requestID)
	}
	if err != nil {
		return apperr.Internal(err)
	}

	r.audit.Record(ctx, UserRef(admin.ID), models.ActionRegistrationReject, ip,
		fmt.Sprintf("request=%d", requestID))
	return nil
}
