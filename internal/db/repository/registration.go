package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/shotserver/internal/models"
)

const requestColumns = `id, username, password_hash, email, status, request_date, admin_response_date, admin_notes`

// RegistrationRepository handles registration request data access
type RegistrationRepository struct {
	db *sql.DB
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create stores a new pending request. A second pending request for the same
// username fails with ErrDuplicate.
func (r *RegistrationRepository) Create(ctx context.Context, req *models.RegistrationRequest) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO registration_requests (username, password_hash, email, status, request_date)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		req.Username,
		req.PasswordHash,
		req.Email,
		models.RequestPending,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create registration request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	req.Status = models.RequestPending
	req.RequestDate = now

	return nil
}

// GetByID retrieves a request by ID regardless of its status
func (r *RegistrationRepository) GetByID(ctx context.Context, id int64) (*models.RegistrationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM registration_requests WHERE id = ?`
	return scanRequest(r.db.QueryRowContext(ctx, query, id))
}

// ListPending lists pending requests, oldest first
func (r *RegistrationRepository) ListPending(ctx context.Context) ([]*models.RegistrationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM registration_requests WHERE status = ? ORDER BY request_date ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.RequestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list registration requests: %w", err)
	}
	defer rows.Close()

	requests := []*models.RegistrationRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registration requests: %w", err)
	}

	return requests, nil
}

// ExistsPending reports whether a pending request exists for username
func (r *RegistrationRepository) ExistsPending(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registration_requests WHERE username = ? AND status = ?`,
		username, models.RequestPending).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check registration request: %w", err)
	}
	return n > 0, nil
}

// CountPending counts requests awaiting a decision
func (r *RegistrationRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registration_requests WHERE status = ?`, models.RequestPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count registration requests: %w", err)
	}
	return n, nil
}

// Approve marks a pending request approved and creates the corresponding
// non-admin user in the same transaction. ErrNotFound is returned when the
// request does not exist or is no longer pending.
func (r *RegistrationRepository) Approve(ctx context.Context, id int64, notes string) (*models.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := resolveRequest(ctx, tx, id, models.RequestApproved, notes, now); err != nil {
		return nil, err
	}

	user := &models.User{
		IsApproved: true,
		Status:     models.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = tx.QueryRowContext(ctx,
		`SELECT username, password_hash, email FROM registration_requests WHERE id = ?`, id,
	).Scan(&user.Username, &user.PasswordHash, &user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to load registration request: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, email, is_admin, is_approved, status, created_at, updated_at)
		VALUES (?, ?, ?, 0, 1, ?, ?, ?)
	`, user.Username, user.PasswordHash, nullString(user.Email), models.StatusActive, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if user.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	return user, nil
}

// Reject marks a pending request rejected
func (r *RegistrationRepository) Reject(ctx context.Context, id int64, notes string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := resolveRequest(ctx, tx, id, models.RequestRejected, notes, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rejection: %w", err)
	}
	return nil
}

func resolveRequest(ctx context.Context, tx *sql.Tx, id int64, status, notes string, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE registration_requests
		SET status = ?, admin_response_date = ?, admin_notes = ?
		WHERE id = ? AND status = ?
	`, status, at, notes, id, models.RequestPending)
	if err != nil {
		return fmt.Errorf("failed to update registration request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRequest(row rowScanner) (*models.RegistrationRequest, error) {
	req := &models.RegistrationRequest{}
	var responseDate sql.NullTime
	var notes sql.NullString

	err := row.Scan(
		&req.ID,
		&req.Username,
		&req.PasswordHash,
		&req.Email,
		&req.Status,
		&req.RequestDate,
		&responseDate,
		&notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan registration request: %w", err)
	}

	if responseDate.Valid {
		t := responseDate.Time
		req.AdminResponseDate = &t
	}
	req.AdminNotes = notes.String

	return req, nil
}
