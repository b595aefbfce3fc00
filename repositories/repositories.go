package repositories

import (
	"database/sql"
)

// Repositories struct holds all repository interfaces
type Repositories struct {
	Identity IdentityRepository
	Audit    AuditRepository
}

// NewRepositories creates and initializes all repositories
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Identity: NewIdentityRepository(db),
		Audit:    NewAuditRepository(db),
	}
}
