package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/communa/backend/internal/config"
	"github.com/communa/backend/internal/domain"
	"github.com/communa/backend/internal/queue/client"
	"github.com/communa/backend/internal/queue/task"
	"github.com/communa/backend/internal/repository"
	"github.com/communa/backend/pkg/auth"
	"github.com/communa/backend/pkg/device"
	"github.com/communa/backend/pkg/hash"
	"github.com/communa/backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// storeTimeout bounds every store round trip. A lookup that cannot finish
// in time fails the authentication, it never passes it.
const storeTimeout = 3 * time.Second

type sessionService struct {
	userRepository    repository.Users
	sessionRepository repository.Sessions
	hasher            hash.PasswordHasher
	tokenManager      auth.TokenManager
	authConfig        config.AuthConfig
	config            *config.Config
}

func newSessionService(userRepository repository.Users,
	sessionRepository repository.Sessions,
	hasher hash.PasswordHasher,
	tokenManager auth.TokenManager,
	authConfig config.AuthConfig,
	config *config.Config,
) *sessionService {
	return &sessionService{
		userRepository:    userRepository,
		sessionRepository: sessionRepository,
		hasher:            hasher,
		tokenManager:      tokenManager,
		authConfig:        authConfig,
		config:            config,
	}
}

// Login verifies credentials, resolves the device, and either reuses the
// active session for (user, device) or creates one. Repeated logins from
// the same device must keep landing on the same row.
func (s *sessionService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	user, err := s.userRepository.GetByCredentialKey(ctx, input.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user by credential key failed: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, input.Password) {
		return nil, ErrInvalidCredentials
	}

	info := device.Resolve(input.Signals)
	if input.DeviceName != "" {
		info.Name = input.DeviceName
	}
	fingerprint := resolveFingerprint(input.Signals)

	deviceID, err := s.resolveDeviceID(ctx, user.ID, fingerprint)
	if err != nil {
		return nil, err
	}

	existing, err := s.sessionRepository.GetActiveByUserAndDevice(ctx, user.ID, deviceID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get session by user and device failed: %w", err)
	}

	if existing != nil {
		if err := s.reuseSession(ctx, existing, input, info); err != nil {
			return nil, err
		}
		return &LoginResult{Session: existing, User: user, Created: false}, nil
	}

	session, err := s.createSession(ctx, user, deviceID, fingerprint, info, input.Signals.UserAgent)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEntry) {
			// A concurrent login from the same device won the insert race.
			// Its row is the session; reuse it instead of failing.
			winner, lookupErr := s.sessionRepository.GetActiveByUserAndDevice(ctx, user.ID, deviceID)
			if lookupErr != nil {
				return nil, fmt.Errorf("lookup after duplicate session insert failed: %w", lookupErr)
			}
			if reuseErr := s.reuseSession(ctx, winner, input, info); reuseErr != nil {
				return nil, reuseErr
			}
			return &LoginResult{Session: winner, User: user, Created: false}, nil
		}
		return nil, err
	}

	s.enqueueNewDeviceAlert(ctx, user, session)

	return &LoginResult{Session: session, User: user, Created: true}, nil
}

// resolveFingerprint prefers a client-computed hash and falls back to
// deriving one when the client declared enough signals to make it stable.
func resolveFingerprint(signals device.Signals) string {
	if signals.Fingerprint != "" {
		return signals.Fingerprint
	}
	if signals.Platform == "" && signals.Language == "" && signals.Timezone == "" && signals.Screen == "" {
		return ""
	}
	return device.Fingerprint(signals)
}

// resolveDeviceID reuses the device identity of any live session carrying
// the same fingerprint, so a fresh login from a known physical device does
// not mint a second device id.
func (s *sessionService) resolveDeviceID(ctx context.Context, userID uuid.UUID, fingerprint string) (uuid.UUID, error) {
	if fingerprint != "" {
		known, err := s.sessionRepository.GetActiveByFingerprint(ctx, userID, fingerprint)
		if err == nil {
			return known.DeviceID, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("get session by fingerprint failed: %w", err)
		}
	}

	deviceID, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate device id failed: %w", err)
	}
	return deviceID, nil
}

// reuseSession refreshes the mutable metadata of an existing row without
// changing its identity: lastActive, expiry window, source IP, user agent,
// and the device name when the login supplied one.
func (s *sessionService) reuseSession(ctx context.Context, session *domain.Session, input LoginInput, info device.Info) error {
	now := time.Now()

	if err := s.sessionRepository.Touch(ctx, session.ID, info.IP, input.Signals.UserAgent); err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}

	expiresAt := now.Add(s.authConfig.SessionTTL)
	if err := s.sessionRepository.ExtendExpiry(ctx, session.ID, expiresAt); err != nil {
		return fmt.Errorf("extend session expiry failed: %w", err)
	}

	if input.DeviceName != "" && input.DeviceName != session.DeviceName {
		if err := s.sessionRepository.UpdateDeviceName(ctx, session.ID, input.DeviceName); err != nil {
			return fmt.Errorf("update device name failed: %w", err)
		}
		session.DeviceName = input.DeviceName
	}

	session.IP = info.IP
	session.UserAgent = input.Signals.UserAgent
	session.LastActive = now
	session.ExpiresAt = expiresAt

	return nil
}

func (s *sessionService) createSession(ctx context.Context, user *domain.User, deviceID uuid.UUID, fingerprint string, info device.Info, userAgent string) (*domain.Session, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id failed: %w", err)
	}

	tokens, err := s.tokenManager.Mint(user.ID, sessionID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("mint tokens failed: %w", err)
	}

	now := time.Now()
	session := &domain.Session{
		ID:                sessionID,
		UserID:            user.ID,
		DeviceID:          deviceID,
		DeviceFingerprint: sql.NullString{String: fingerprint, Valid: fingerprint != ""},
		DeviceName:        info.Name,
		DeviceClass:       info.Class,
		Platform:          info.Platform,
		Browser:           info.Browser,
		OS:                info.OS,
		IP:                info.IP,
		UserAgent:         userAgent,
		AccessToken:       tokens.AccessToken,
		RefreshToken:      tokens.RefreshToken,
		IsActive:          true,
		ExpiresAt:         now.Add(s.authConfig.SessionTTL),
		CreatedAt:         now,
		LastRefresh:       now,
		LastActive:        now,
	}

	if err := s.sessionRepository.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *sessionService) enqueueNewDeviceAlert(ctx context.Context, user *domain.User, session *domain.Session) {
	if !s.config.Email.Enabled || !user.Email.Valid {
		return
	}

	alertTask, err := task.NewSendSecurityAlertTask(user.Email.String, user.Username, session.DeviceName, session.IP, session.CreatedAt)
	if err != nil {
		logger.Error("build security alert task failed", zap.Error(err))
		return
	}

	queueClient := client.GetClient(ctx)
	if queueClient == nil {
		return
	}

	// Fire and forget: a broker hiccup never fails the login.
	if _, err := queueClient.EnqueueContext(ctx, alertTask); err != nil {
		logger.Error("enqueue security alert task failed", zap.Error(err))
	}
}

// Validate resolves a session id into a live session and its owner.
// Expired comes back as ErrSessionExpired; revoked and never-existed
// collapse into ErrSessionNotFound.
func (s *sessionService) Validate(ctx context.Context, sessionID uuid.UUID) (*domain.Session, *domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.userRepository.GetOneByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("get session user failed: %w", err)
	}

	return session, user, nil
}

func (s *sessionService) liveSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := s.sessionRepository.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session by id failed: %w", err)
	}

	now := time.Now()
	if !session.IsActive {
		// Revoked is terminal. Log the distinction, report it as not found.
		logger.Debug("rejected revoked session", zap.String("session_id", sessionID.String()))
		return nil, ErrSessionNotFound
	}
	if session.Expired(now) {
		return nil, ErrSessionExpired
	}

	return session, nil
}

func (s *sessionService) UserBySession(ctx context.Context, sessionID uuid.UUID) (*domain.User, error) {
	_, user, err := s.Validate(ctx, sessionID)
	return user, err
}

// GetOrRefreshToken returns the session's access token, minting a
// replacement in place when the stored one has expired. The session id
// stays the stable client handle across rotations.
func (s *sessionService) GetOrRefreshToken(ctx context.Context, sessionID uuid.UUID) (*TokenResult, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	claims, err := s.tokenManager.Validate(session.AccessToken, auth.ClassAccess)
	if err == nil {
		if touchErr := s.sessionRepository.Touch(ctx, session.ID, session.IP, session.UserAgent); touchErr != nil {
			logger.Warn("bump last active failed", zap.Error(touchErr))
		}
		return &TokenResult{
			AccessToken: session.AccessToken,
			ExpiresAt:   claims.ExpiresAt.Unix(),
			Refreshed:   false,
		}, nil
	}

	if !errors.Is(err, auth.ErrTokenExpired) {
		// A stored token that fails for any reason other than expiry means
		// the row is corrupt; refuse to refresh it.
		logger.Error("stored access token failed validation", zap.String("session_id", sessionID.String()), zap.Error(err))
		return nil, ErrSessionNotFound
	}

	tokens, err := s.tokenManager.Mint(session.UserID, session.ID, session.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("mint replacement tokens failed: %w", err)
	}

	// Last write wins under concurrent refresh: both writers minted valid
	// tokens for the same triple, either outcome is correct.
	if err := s.sessionRepository.UpdateTokens(ctx, session.ID, tokens.AccessToken, tokens.RefreshToken); err != nil {
		if errors.Is(err, domain.ErrNoRowsAffected) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("update session tokens failed: %w", err)
	}

	return &TokenResult{
		AccessToken: tokens.AccessToken,
		ExpiresAt:   time.Now().Add(tokens.AccessTTL).Unix(),
		Refreshed:   true,
	}, nil
}

// ListForUser returns the caller's active sessions for the "your devices"
// view. Token values never leave this layer.
func (s *sessionService) ListForUser(ctx context.Context, sessionID uuid.UUID) ([]domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessionRepository.ListActiveByUser(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by user failed: %w", err)
	}

	stripTokens(sessions)
	return sessions, nil
}

// Revoke deactivates the caller's session, or a named target the caller
// owns. Revoking an already-revoked target is a success: the end state
// holds either way.
func (s *sessionService) Revoke(ctx context.Context, sessionID uuid.UUID, targetID *uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return err
	}

	victim := session.ID
	if targetID != nil && *targetID != session.ID {
		target, err := s.sessionRepository.GetByID(ctx, *targetID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("get target session failed: %w", err)
		}
		if target.UserID != session.UserID {
			return ErrUnauthorizedDeviceAction
		}
		victim = target.ID
	}

	if err := s.sessionRepository.Deactivate(ctx, victim); err != nil {
		return fmt.Errorf("deactivate session failed: %w", err)
	}
	return nil
}

func (s *sessionService) RevokeOthers(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	count, err := s.sessionRepository.DeactivateByUser(ctx, session.UserID, &session.ID)
	if err != nil {
		return 0, fmt.Errorf("deactivate other sessions failed: %w", err)
	}
	return count, nil
}

func (s *sessionService) RevokeAll(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	count, err := s.sessionRepository.DeactivateByUser(ctx, session.UserID, nil)
	if err != nil {
		return 0, fmt.Errorf("deactivate all sessions failed: %w", err)
	}
	return count, nil
}

func (s *sessionService) ListDeviceSessions(ctx context.Context, sessionID uuid.UUID, deviceID *uuid.UUID) ([]domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	dev := session.DeviceID
	if deviceID != nil {
		dev = *deviceID
	}

	sessions, err := s.sessionRepository.ListActiveByDevice(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("list sessions by device failed: %w", err)
	}

	for i := range sessions {
		if sessions[i].UserID != session.UserID {
			return nil, ErrUnauthorizedDeviceAction
		}
	}

	stripTokens(sessions)
	return sessions, nil
}

// RevokeDevice logs the device out everywhere, optionally sparing the
// caller's own session ("everywhere except here").
func (s *sessionService) RevokeDevice(ctx context.Context, sessionID uuid.UUID, deviceID *uuid.UUID, excludeCurrent bool) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	dev := session.DeviceID
	if deviceID != nil {
		dev = *deviceID
	}

	others, err := s.sessionRepository.ListActiveByDevice(ctx, dev)
	if err != nil {
		return 0, fmt.Errorf("list sessions by device failed: %w", err)
	}
	for i := range others {
		if others[i].UserID != session.UserID {
			return 0, ErrUnauthorizedDeviceAction
		}
	}

	var exclude *uuid.UUID
	if excludeCurrent {
		exclude = &session.ID
	}

	count, err := s.sessionRepository.DeactivateByDevice(ctx, dev, exclude)
	if err != nil {
		return 0, fmt.Errorf("deactivate device sessions failed: %w", err)
	}
	return count, nil
}

func (s *sessionService) RenameDevice(ctx context.Context, sessionID uuid.UUID, name string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	session, err := s.liveSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.sessionRepository.UpdateDeviceName(ctx, session.ID, name); err != nil {
		return fmt.Errorf("rename device failed: %w", err)
	}
	return nil
}

// Touch bumps lastActive and source metadata. Middleware calls it fire and
// forget; a failed bump never fails the request it rode in on.
func (s *sessionService) Touch(ctx context.Context, sessionID uuid.UUID, ip, userAgent string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	return s.sessionRepository.Touch(ctx, sessionID, ip, userAgent)
}

func stripTokens(sessions []domain.Session) {
	for i := range sessions {
		sessions[i].AccessToken = ""
		sessions[i].RefreshToken = ""
	}
}
