package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Session is one authenticated (user, device) login. The row identity is
// stable: token values rotate in place underneath the same ID.
//
// A session stops authenticating in exactly two ways: IsActive flips to
// false (revocation, terminal) or ExpiresAt passes. Nothing ever flips
// IsActive back to true.
type Session struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	UserID            uuid.UUID      `db:"user_id" json:"user_id"`
	DeviceID          uuid.UUID      `db:"device_id" json:"device_id"`
	DeviceFingerprint sql.NullString `db:"device_fingerprint" json:"device_fingerprint"`

	DeviceName  string `db:"device_name" json:"device_name"`
	DeviceClass string `db:"device_class" json:"device_class"`
	Platform    string `db:"platform" json:"platform"`
	Browser     string `db:"browser" json:"browser"`
	OS          string `db:"os" json:"os"`
	IP          string `db:"ip" json:"ip"`
	UserAgent   string `db:"user_agent" json:"user_agent"`
	Location    string `db:"location" json:"location"`

	AccessToken  string `db:"access_token" json:"-"`
	RefreshToken string `db:"refresh_token" json:"-"`

	IsActive  bool      `db:"is_active" json:"is_active"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`

	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	LastRefresh time.Time `db:"last_refresh" json:"last_refresh"`
	LastActive  time.Time `db:"last_active" json:"last_active"`
}

// Expired reports whether the absolute session TTL has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Authenticates reports whether the row may still back an authenticated
// request. Every consumer must go through this check, no exceptions.
func (s *Session) Authenticates(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}
