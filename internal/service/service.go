package service

import (
	"context"

	"github.com/communa/backend/internal/config"
	"github.com/communa/backend/internal/domain"
	"github.com/communa/backend/internal/repository"
	"github.com/communa/backend/pkg/auth"
	"github.com/communa/backend/pkg/device"
	"github.com/communa/backend/pkg/hash"

	"github.com/google/uuid"
)

type Services struct {
	Sessions Sessions
}

type Deps struct {
	Config       *config.Config
	Hasher       hash.PasswordHasher
	TokenManager auth.TokenManager
	Repos        *repository.Repositories
}

func NewServices(deps Deps) *Services {
	return &Services{
		Sessions: newSessionService(deps.Repos.Users,
			deps.Repos.Sessions,
			deps.Hasher,
			deps.TokenManager,
			deps.Config.Auth,
			deps.Config,
		),
	}
}

type LoginInput struct {
	Username   string
	Password   string
	DeviceName string
	Signals    device.Signals
}

type LoginResult struct {
	Session *domain.Session
	User    *domain.User
	// Created is false when the login reused an existing active session for
	// the same (user, device).
	Created bool
}

type TokenResult struct {
	AccessToken string
	ExpiresAt   int64
	Refreshed   bool
}

// Sessions is the session lifecycle manager: login with reuse-or-create,
// token refresh in place, and the revocation family. Every operation other
// than Login takes the caller's own session id as its authentication handle.
type Sessions interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	Validate(ctx context.Context, sessionID uuid.UUID) (*domain.Session, *domain.User, error)
	UserBySession(ctx context.Context, sessionID uuid.UUID) (*domain.User, error)
	GetOrRefreshToken(ctx context.Context, sessionID uuid.UUID) (*TokenResult, error)
	ListForUser(ctx context.Context, sessionID uuid.UUID) ([]domain.Session, error)
	Revoke(ctx context.Context, sessionID uuid.UUID, targetID *uuid.UUID) error
	RevokeOthers(ctx context.Context, sessionID uuid.UUID) (int64, error)
	RevokeAll(ctx context.Context, sessionID uuid.UUID) (int64, error)
	ListDeviceSessions(ctx context.Context, sessionID uuid.UUID, deviceID *uuid.UUID) ([]domain.Session, error)
	RevokeDevice(ctx context.Context, sessionID uuid.UUID, deviceID *uuid.UUID, excludeCurrent bool) (int64, error)
	RenameDevice(ctx context.Context, sessionID uuid.UUID, name string) error
	Touch(ctx context.Context, sessionID uuid.UUID, ip, userAgent string) error
}
