package repositories

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogem/gitlab-login/database"
	"github.com/blogem/gitlab-login/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Initialize test database using the actual migration system
	if err := database.InitializeDatabase(dbPath); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB() })

	return database.GetDB()
}

func TestIdentityRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepository(setupTestDB(t))

	exists, err := repo.Exists(ctx, "42")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.GetByExternalID(ctx, "42")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	account := &models.LinkedAccount{
		ExternalID: "42",
		Name:       "John Doe",
		Email:      "john@example.com",
		ExtraData:  `[{"name":"user_keys","path":"/v4/user/keys","data":[]}]`,
	}
	require.NoError(t, repo.Create(ctx, account))
	assert.NotZero(t, account.ID)

	exists, err = repo.Exists(ctx, "42")
	require.NoError(t, err)
	assert.True(t, exists)

	// A second login refreshes the profile but keeps the first-login data
	account.Name = "Johnny"
	account.ExtraData = "ignored"
	require.NoError(t, repo.RecordLogin(ctx, account))

	stored, err := repo.GetByExternalID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Johnny", stored.Name)
	assert.Contains(t, stored.ExtraData, "user_keys")

	err = repo.Create(ctx, &models.LinkedAccount{ExternalID: "42", Name: "Duplicate"})
	assert.Error(t, err, "external id must be unique")

	err = repo.RecordLogin(ctx, &models.LinkedAccount{ExternalID: "7", Name: "Nobody"})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestIdentityRepository_InvalidAccount(t *testing.T) {
	repo := NewIdentityRepository(setupTestDB(t))
	err := repo.Create(context.Background(), &models.LinkedAccount{Name: "No ID"})
	assert.Error(t, err)
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(setupTestDB(t))

	require.NoError(t, repo.Create(ctx, &models.AuthEvent{Outcome: "InvalidState", IPAddress: "10.0.0.1"}))
	require.NoError(t, repo.Create(ctx, &models.AuthEvent{Outcome: "complete", ExternalID: "42"}))

	events, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "complete", events[0].Outcome)
	assert.Equal(t, "InvalidState", events[1].Outcome)
	assert.False(t, events[1].Timestamp.IsZero())
}
