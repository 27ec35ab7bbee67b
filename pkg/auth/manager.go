package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/communa/backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token classes. Each class is signed with its own secret, so leaking one
// secret never compromises the other class.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

var (
	ErrTokenExpired   = errors.New("token is expired")
	ErrTokenMalformed = errors.New("token is malformed")
)

// Claims is the one canonical token payload. Every mint and every validate
// in the codebase goes through this type; nothing else reads raw JWT claims.
type Claims struct {
	SessionID uuid.UUID  `json:"sid"`
	DeviceID  uuid.UUID  `json:"did"`
	Class     TokenClass `json:"cls"`
	jwt.RegisteredClaims
}

// UserID returns the identity carried in the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

type TokenPair struct {
	AccessToken  string
	AccessTTL    time.Duration
	RefreshToken string
	RefreshTTL   time.Duration
}

// TokenManager mints and validates the two token classes bound to a
// (user, session, device) triple.
type TokenManager interface {
	Mint(userID, sessionID, deviceID uuid.UUID) (*TokenPair, error)
	MintAccess(userID, sessionID, deviceID uuid.UUID) (string, time.Duration, error)
	Validate(token string, class TokenClass) (*Claims, error)
}

type Manager struct {
	accessKey       string
	refreshKey      string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.AccessSigningKey == "" {
		return nil, errors.New("empty access signing key")
	}

	if cfg.RefreshSigningKey == "" {
		return nil, errors.New("empty refresh signing key")
	}

	if cfg.AccessSigningKey == cfg.RefreshSigningKey {
		return nil, errors.New("access and refresh signing keys must differ")
	}

	if cfg.AccessTokenTTL == 0 {
		return nil, errors.New("empty access token ttl")
	}

	if cfg.RefreshTokenTTL == 0 {
		return nil, errors.New("empty refresh token ttl")
	}

	return &Manager{
		accessKey:       cfg.AccessSigningKey,
		refreshKey:      cfg.RefreshSigningKey,
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
	}, nil
}

// Mint issues a fresh access/refresh pair bound to the triple. Pure of its
// inputs and the clock; persistence is the caller's business.
func (m *Manager) Mint(userID, sessionID, deviceID uuid.UUID) (*TokenPair, error) {
	access, accessTTL, err := m.MintAccess(userID, sessionID, deviceID)
	if err != nil {
		return nil, err
	}

	refresh, err := m.sign(userID, sessionID, deviceID, ClassRefresh, m.refreshTokenTTL, m.refreshKey)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token failed: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		AccessTTL:    accessTTL,
		RefreshToken: refresh,
		RefreshTTL:   m.refreshTokenTTL,
	}, nil
}

func (m *Manager) MintAccess(userID, sessionID, deviceID uuid.UUID) (string, time.Duration, error) {
	access, err := m.sign(userID, sessionID, deviceID, ClassAccess, m.accessTokenTTL, m.accessKey)
	if err != nil {
		return "", 0, fmt.Errorf("sign access token failed: %w", err)
	}
	return access, m.accessTokenTTL, nil
}

func (m *Manager) sign(userID, sessionID, deviceID uuid.UUID, class TokenClass, ttl time.Duration, key string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: sessionID,
		DeviceID:  deviceID,
		Class:     class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	return token.SignedString([]byte(key))
}

// Validate checks signature, expiry and class. Expiry comes back as
// ErrTokenExpired; everything else, including a token of the wrong class,
// is ErrTokenMalformed.
func (m *Manager) Validate(tokenString string, class TokenClass) (*Claims, error) {
	key := m.accessKey
	if class == ClassRefresh {
		key = m.refreshKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(key), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrTokenMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	// A refresh token presented where an access token is expected is a
	// malformed credential, never a silent accept.
	if claims.Class != class {
		return nil, fmt.Errorf("%w: wrong token class", ErrTokenMalformed)
	}

	return claims, nil
}
