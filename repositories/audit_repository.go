package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blogem/gitlab-login/models"
)

// AuditRepository handles auth event persistence
type AuditRepository interface {
	Create(ctx context.Context, event *models.AuthEvent) error
	Recent(ctx context.Context, limit int) ([]models.AuthEvent, error)
}

type sqliteAuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &sqliteAuditRepository{db: db}
}

// Create inserts a new auth event
func (r *sqliteAuditRepository) Create(ctx context.Context, event *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (timestamp, outcome, external_id, ip_address, user_agent, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		query,
		event.Timestamp,
		event.Outcome,
		event.ExternalID,
		event.IPAddress,
		event.UserAgent,
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to create auth event: %w", err)
	}

	event.ID, err = result.LastInsertId()
	return err
}

// Recent returns the latest auth events, newest first
func (r *sqliteAuditRepository) Recent(ctx context.Context, limit int) ([]models.AuthEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, outcome, external_id, ip_address, user_agent, detail
		FROM auth_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth events: %w", err)
	}
	defer rows.Close()

	var events []models.AuthEvent
	for rows.Next() {
		var e models.AuthEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Outcome, &e.ExternalID, &e.IPAddress, &e.UserAgent, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
