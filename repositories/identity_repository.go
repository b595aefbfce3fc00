package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blogem/gitlab-login/models"
)

// ErrAccountNotFound is returned when no account is linked to an identity
var ErrAccountNotFound = errors.New("linked account not found")

// IdentityRepository interface defines linked account database operations
type IdentityRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.LinkedAccount, error)
	Exists(ctx context.Context, externalID string) (bool, error)
	Create(ctx context.Context, account *models.LinkedAccount) error
	RecordLogin(ctx context.Context, account *models.LinkedAccount) error
}

// identityRepository implements IdentityRepository interface
type identityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *sql.DB) IdentityRepository {
	return &identityRepository{db: db}
}

// GetByExternalID retrieves the account linked to a GitLab user id
func (r *identityRepository) GetByExternalID(ctx context.Context, externalID string) (*models.LinkedAccount, error) {
	query := `
		SELECT id, external_id, name, email, avatar_url, extra_data,
		       created_at, last_login_at
		FROM linked_accounts
		WHERE external_id = ?
	`

	var account models.LinkedAccount
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&account.ID,
		&account.ExternalID,
		&account.Name,
		&account.Email,
		&account.AvatarURL,
		&account.ExtraData,
		&account.CreatedAt,
		&account.LastLoginAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}

	return &account, nil
}

// Exists reports whether an account is linked to the GitLab user id
func (r *identityRepository) Exists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM linked_accounts WHERE external_id = ?)", externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check linked account: %w", err)
	}
	return exists, nil
}

// Create inserts a new linked account
func (r *identityRepository) Create(ctx context.Context, account *models.LinkedAccount) error {
	if err := account.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO linked_accounts (external_id, name, email, avatar_url, extra_data, created_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		account.ExternalID,
		account.Name,
		account.Email,
		account.AvatarURL,
		account.ExtraData,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create linked account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get linked account ID: %w", err)
	}

	account.ID = id
	account.CreatedAt = now
	account.LastLoginAt = now
	return nil
}

// RecordLogin refreshes the profile fields and login time. Extra data is
// only written on creation.
func (r *identityRepository) RecordLogin(ctx context.Context, account *models.LinkedAccount) error {
	now := time.Now().UTC()
	query := `
		UPDATE linked_accounts
		SET name = ?, email = ?, avatar_url = ?, last_login_at = ?
		WHERE external_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		account.Name,
		account.Email,
		account.AvatarURL,
		now,
		account.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update linked account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAccountNotFound
	}

	account.LastLoginAt = now
	return nil
}
