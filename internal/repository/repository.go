package repository

import (
	"context"
	"time"

	"github.com/communa/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repositories struct {
	Users    Users
	Sessions Sessions
}

func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Users:    newUserRepository(db),
		Sessions: newSessionRepository(db),
	}
}

// Users is the identity-store collaborator. The session subsystem reads
// identity and password hash, nothing else.
type Users interface {
	GetByCredentialKey(ctx context.Context, usernameOrEmail string) (*domain.User, error)
	GetOneByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Sessions is the durable session table. Unless a method name says
// otherwise, lookups only return rows that still authenticate
// (is_active and unexpired); GetByID is the deliberate exception so
// callers can tell revoked from expired in logs.
type Sessions interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetByAccessToken(ctx context.Context, token string) (*domain.Session, error)
	GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error)
	GetActiveByUserAndDevice(ctx context.Context, userID, deviceID uuid.UUID) (*domain.Session, error)
	GetActiveByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)
	ListActiveByDevice(ctx context.Context, deviceID uuid.UUID) ([]domain.Session, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string) error
	Touch(ctx context.Context, id uuid.UUID, ip, userAgent string) error
	ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	UpdateDeviceName(ctx context.Context, id uuid.UUID, name string) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateByUser(ctx context.Context, userID uuid.UUID, exclude *uuid.UUID) (int64, error)
	DeactivateByDevice(ctx context.Context, deviceID uuid.UUID, exclude *uuid.UUID) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
