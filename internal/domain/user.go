package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User is the slice of the identity store this subsystem is allowed to see:
// identity, credential key and password hash. Profile fields live elsewhere.
type User struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	Username     string         `db:"username" json:"username"`
	Email        sql.NullString `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Avatar       sql.NullString `db:"avatar" json:"avatar"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}
