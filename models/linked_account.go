package models

import (
	"errors"
	"strings"
	"time"
)

// LinkedAccount is a local account bound to a GitLab identity
type LinkedAccount struct {
	ID          int64
	ExternalID  string
	Name        string
	Email       string
	AvatarURL   string
	ExtraData   string // JSON array collected on first login
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// Validate checks the fields required to store an account
func (a *LinkedAccount) Validate() error {
	if strings.TrimSpace(a.ExternalID) == "" {
		return errors.New("external ID is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}
