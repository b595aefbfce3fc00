package models

import "time"

// AuthEvent records the outcome of one GitLab login callback
type AuthEvent struct {
	ID         int64
	Timestamp  time.Time
	Outcome    string
	ExternalID string
	IPAddress  string
	UserAgent  string
	Detail     string
}
