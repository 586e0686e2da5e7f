package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adamscao/shotserver/internal/models"
)

// Audit listing bounds
const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditRepository handles audit log data access
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_log (user_id, action, details, ip_address, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	var userID sql.NullInt64
	if entry.UserID != nil {
		userID = sql.NullInt64{Int64: *entry.UserID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		userID,
		entry.Action,
		nullString(entry.Details),
		entry.IPAddress,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id

	return nil
}

// List lists audit entries newest first with optional filters
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, user_id, action, details, ip_address, timestamp
		FROM audit_log
		WHERE 1=1
	`
	args := []any{}

	if filter.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *filter.UserID)
	}

	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}

	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	entries := []*models.AuditEntry{}
	for rows.Next() {
		entry := &models.AuditEntry{}
		var userID sql.NullInt64
		var details sql.NullString

		err := rows.Scan(
			&entry.ID,
			&userID,
			&entry.Action,
			&details,
			&entry.IPAddress,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if userID.Valid {
			id := userID.Int64
			entry.UserID = &id
		}
		entry.Details = details.String

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}

	return entries, nil
}

// CountByAction counts audit logs by action type
func (r *AuditRepository) CountByAction(ctx context.Context, action string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_log
		WHERE action = ? AND timestamp >= ?
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, action, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}
