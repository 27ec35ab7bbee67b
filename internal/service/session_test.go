package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/communa/backend/internal/config"
	"github.com/communa/backend/internal/domain"
	"github.com/communa/backend/pkg/auth"
	"github.com/communa/backend/pkg/device"
	"github.com/communa/backend/pkg/hash"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*domain.User
}

func (f *fakeUserRepo) GetByCredentialKey(_ context.Context, key string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Username == key || (u.Email.Valid && u.Email.String == key) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) GetOneByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// fakeSessionRepo mimics the MySQL store including the uniqueness
// constraint on one active row per (user, device).
type fakeSessionRepo struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*domain.Session
	onCreate func(*domain.Session) error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: make(map[uuid.UUID]*domain.Session)}
}

func (f *fakeSessionRepo) Create(_ context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onCreate != nil {
		if err := f.onCreate(session); err != nil {
			return err
		}
	}

	now := time.Now()
	for _, row := range f.rows {
		if row.AccessToken == session.AccessToken || row.RefreshToken == session.RefreshToken {
			return domain.ErrDuplicateEntry
		}
		if row.UserID == session.UserID && row.DeviceID == session.DeviceID && row.IsActive && row.ExpiresAt.After(now) {
			return domain.ErrDuplicateEntry
		}
	}

	copied := *session
	f.rows[session.ID] = &copied
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeSessionRepo) GetByAccessToken(_ context.Context, token string) (*domain.Session, error) {
	return f.findLive(func(s *domain.Session) bool { return s.AccessToken == token })
}

func (f *fakeSessionRepo) GetByRefreshToken(_ context.Context, token string) (*domain.Session, error) {
	return f.findLive(func(s *domain.Session) bool { return s.RefreshToken == token })
}

func (f *fakeSessionRepo) GetActiveByUserAndDevice(_ context.Context, userID, deviceID uuid.UUID) (*domain.Session, error) {
	return f.findLive(func(s *domain.Session) bool { return s.UserID == userID && s.DeviceID == deviceID })
}

func (f *fakeSessionRepo) GetActiveByFingerprint(_ context.Context, userID uuid.UUID, fingerprint string) (*domain.Session, error) {
	return f.findLive(func(s *domain.Session) bool {
		return s.UserID == userID && s.DeviceFingerprint.Valid && s.DeviceFingerprint.String == fingerprint
	})
}

func (f *fakeSessionRepo) findLive(match func(*domain.Session) bool) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, row := range f.rows {
		if row.IsActive && row.ExpiresAt.After(now) && match(row) {
			copied := *row
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSessionRepo) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]domain.Session, error) {
	return f.listLive(func(s *domain.Session) bool { return s.UserID == userID })
}

func (f *fakeSessionRepo) ListActiveByDevice(_ context.Context, deviceID uuid.UUID) ([]domain.Session, error) {
	return f.listLive(func(s *domain.Session) bool { return s.DeviceID == deviceID })
}

func (f *fakeSessionRepo) listLive(match func(*domain.Session) bool) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	var out []domain.Session
	for _, row := range f.rows {
		if row.IsActive && row.ExpiresAt.After(now) && match(row) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) UpdateTokens(_ context.Context, id uuid.UUID, accessToken, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok || !row.IsActive {
		return domain.ErrNoRowsAffected
	}
	row.AccessToken = accessToken
	row.RefreshToken = refreshToken
	row.LastRefresh = time.Now()
	return nil
}

func (f *fakeSessionRepo) Touch(_ context.Context, id uuid.UUID, ip, userAgent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rows[id]; ok {
		row.LastActive = time.Now()
		row.IP = ip
		row.UserAgent = userAgent
	}
	return nil
}

func (f *fakeSessionRepo) ExtendExpiry(_ context.Context, id uuid.UUID, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rows[id]; ok && row.IsActive {
		row.ExpiresAt = expiresAt
	}
	return nil
}

func (f *fakeSessionRepo) UpdateDeviceName(_ context.Context, id uuid.UUID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rows[id]; ok {
		row.DeviceName = name
	}
	return nil
}

func (f *fakeSessionRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rows[id]; ok {
		row.IsActive = false
	}
	return nil
}

func (f *fakeSessionRepo) DeactivateByUser(_ context.Context, userID uuid.UUID, exclude *uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, row := range f.rows {
		if row.UserID != userID || !row.IsActive {
			continue
		}
		if exclude != nil && row.ID == *exclude {
			continue
		}
		row.IsActive = false
		count++
	}
	return count, nil
}

func (f *fakeSessionRepo) DeactivateByDevice(_ context.Context, deviceID uuid.UUID, exclude *uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, row := range f.rows {
		if row.DeviceID != deviceID || !row.IsActive {
			continue
		}
		if exclude != nil && row.ID == *exclude {
			continue
		}
		row.IsActive = false
		count++
	}
	return count, nil
}

func (f *fakeSessionRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	var count int64
	for id, row := range f.rows {
		if (!row.IsActive || row.ExpiresAt.Before(now)) && row.ExpiresAt.Before(cutoff) {
			delete(f.rows, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepo) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, row := range f.rows {
		if row.IsActive {
			count++
		}
	}
	return count
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSigningKey:  "access-secret",
		RefreshSigningKey: "refresh-secret",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   168 * time.Hour,
		SessionTTL:        720 * time.Hour,
	}
}

type fixture struct {
	service  *sessionService
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	manager  *auth.Manager
	alice    *domain.User
	bob      *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	authCfg := testAuthConfig()
	manager, err := auth.NewManager(authCfg)
	require.NoError(t, err)

	hasher := hash.NewBcryptHasher(4)
	alicePass, err := hasher.Hash("correct horse battery")
	require.NoError(t, err)
	bobPass, err := hasher.Hash("hunter2hunter2")
	require.NoError(t, err)

	alice := &domain.User{ID: uuid.New(), Username: "alice", PasswordHash: alicePass}
	bob := &domain.User{ID: uuid.New(), Username: "bob", PasswordHash: bobPass}

	users := &fakeUserRepo{users: map[uuid.UUID]*domain.User{alice.ID: alice, bob.ID: bob}}
	sessions := newFakeSessionRepo()

	cfg := &config.Config{Auth: authCfg}
	svc := newSessionService(users, sessions, hasher, manager, authCfg, cfg)

	return &fixture{service: svc, users: users, sessions: sessions, manager: manager, alice: alice, bob: bob}
}

func phoneSignals() device.Signals {
	return device.Signals{
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		Platform:  "iPhone",
		Language:  "en-US",
		Timezone:  "Europe/Berlin",
		Screen:    "390x844x24",
		IP:        "203.0.113.7",
	}
}

func laptopSignals() device.Signals {
	return device.Signals{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		Platform:  "Win32",
		Language:  "en-US",
		Timezone:  "Europe/Berlin",
		Screen:    "1920x1080x24",
		IP:        "203.0.113.8",
	}
}

func (f *fixture) login(t *testing.T, user string, password string, signals device.Signals) *LoginResult {
	t.Helper()

	result, err := f.service.Login(context.Background(), LoginInput{
		Username: user,
		Password: password,
		Signals:  signals,
	})
	require.NoError(t, err)
	return result
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Login(context.Background(), LoginInput{
		Username: "nobody",
		Password: "whatever12345",
		Signals:  phoneSignals(),
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.service.Login(context.Background(), LoginInput{
		Username: "alice",
		Password: "wrong password!",
		Signals:  phoneSignals(),
	})
	// Unknown user and wrong password must be indistinguishable.
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginReusesSessionForSameDevice(t *testing.T) {
	f := newFixture(t)

	first := f.login(t, "alice", "correct horse battery", phoneSignals())
	require.True(t, first.Created)

	second := f.login(t, "alice", "correct horse battery", phoneSignals())
	assert.False(t, second.Created)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, first.Session.DeviceID, second.Session.DeviceID)
	assert.Equal(t, 1, f.sessions.activeCount())
}

func TestLoginCreatesSeparateSessionsPerDevice(t *testing.T) {
	f := newFixture(t)

	phone := f.login(t, "alice", "correct horse battery", phoneSignals())
	laptop := f.login(t, "alice", "correct horse battery", laptopSignals())

	assert.NotEqual(t, phone.Session.ID, laptop.Session.ID)
	assert.NotEqual(t, phone.Session.DeviceID, laptop.Session.DeviceID)
	assert.Equal(t, 2, f.sessions.activeCount())
}

func TestLoginDuplicateInsertReusesWinner(t *testing.T) {
	f := newFixture(t)

	// Simulate losing the insert race: the "winning" login lands between
	// this login's lookup and its insert.
	var winner *domain.Session
	f.sessions.onCreate = func(s *domain.Session) error {
		if winner == nil {
			winner = &domain.Session{}
			*winner = *s
			winner.ID = uuid.New()
			winner.AccessToken = s.AccessToken + "-winner"
			winner.RefreshToken = s.RefreshToken + "-winner"
			f.sessions.rows[winner.ID] = winner
			return domain.ErrDuplicateEntry
		}
		return nil
	}

	result := f.login(t, "alice", "correct horse battery", phoneSignals())
	assert.False(t, result.Created)
	assert.Equal(t, winner.ID, result.Session.ID)
	assert.Equal(t, 1, f.sessions.activeCount())
}

func TestRevokeOthersLeavesCurrentUntouched(t *testing.T) {
	f := newFixture(t)

	phone := f.login(t, "alice", "correct horse battery", phoneSignals())
	laptop := f.login(t, "alice", "correct horse battery", laptopSignals())

	count, err := f.service.RevokeOthers(context.Background(), phone.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, _, err = f.service.Validate(context.Background(), phone.Session.ID)
	assert.NoError(t, err)

	_, _, err = f.service.Validate(context.Background(), laptop.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	listed, err := f.service.ListForUser(context.Background(), phone.Session.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, phone.Session.ID, listed[0].ID)
}

func TestRevokeIsolationAcrossUsers(t *testing.T) {
	f := newFixture(t)

	alice := f.login(t, "alice", "correct horse battery", phoneSignals())
	bob := f.login(t, "bob", "hunter2hunter2", laptopSignals())

	_, err := f.service.RevokeAll(context.Background(), alice.Session.ID)
	require.NoError(t, err)

	_, _, err = f.service.Validate(context.Background(), bob.Session.ID)
	assert.NoError(t, err)
}

func TestRevocationIsTerminal(t *testing.T) {
	f := newFixture(t)

	first := f.login(t, "alice", "correct horse battery", phoneSignals())

	require.NoError(t, f.service.Revoke(context.Background(), first.Session.ID, nil))

	_, _, err := f.service.Validate(context.Background(), first.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.service.GetOrRefreshToken(context.Background(), first.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// A fresh login from the same device lands on a different row.
	second := f.login(t, "alice", "correct horse battery", phoneSignals())
	assert.True(t, second.Created)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
}

func TestRevokeAllIsIdempotent(t *testing.T) {
	f := newFixture(t)

	phone := f.login(t, "alice", "correct horse battery", phoneSignals())
	f.login(t, "alice", "correct horse battery", laptopSignals())

	count, err := f.service.RevokeAll(context.Background(), phone.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// The handle is itself revoked now, so the second call fails closed
	// with not-found rather than double-counting.
	_, err = f.service.RevokeAll(context.Background(), phone.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Deactivating the rows directly a second time touches nothing.
	again, err := f.sessions.DeactivateByUser(context.Background(), phone.Session.UserID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again)
}

func TestValidateExpiredSession(t *testing.T) {
	f := newFixture(t)

	result := f.login(t, "alice", "correct horse battery", phoneSignals())

	f.sessions.mu.Lock()
	f.sessions.rows[result.Session.ID].ExpiresAt = time.Now().Add(-time.Minute)
	f.sessions.mu.Unlock()

	_, _, err := f.service.Validate(context.Background(), result.Session.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestGetOrRefreshTokenKeepsValidToken(t *testing.T) {
	f := newFixture(t)

	result := f.login(t, "alice", "correct horse battery", phoneSignals())

	tokenResult, err := f.service.GetOrRefreshToken(context.Background(), result.Session.ID)
	require.NoError(t, err)
	assert.False(t, tokenResult.Refreshed)
	assert.Equal(t, result.Session.AccessToken, tokenResult.AccessToken)
}

func TestGetOrRefreshTokenMintsReplacementInPlace(t *testing.T) {
	f := newFixture(t)

	result := f.login(t, "alice", "correct horse battery", phoneSignals())

	// Swap the stored access token for one that is already expired.
	expiredCfg := testAuthConfig()
	expiredCfg.AccessTokenTTL = -time.Minute
	expiredManager, err := auth.NewManager(expiredCfg)
	require.NoError(t, err)

	pair, err := expiredManager.Mint(result.User.ID, result.Session.ID, result.Session.DeviceID)
	require.NoError(t, err)

	f.sessions.mu.Lock()
	f.sessions.rows[result.Session.ID].AccessToken = pair.AccessToken
	f.sessions.mu.Unlock()

	tokenResult, err := f.service.GetOrRefreshToken(context.Background(), result.Session.ID)
	require.NoError(t, err)
	assert.True(t, tokenResult.Refreshed)
	assert.NotEqual(t, pair.AccessToken, tokenResult.AccessToken)

	claims, err := f.manager.Validate(tokenResult.AccessToken, auth.ClassAccess)
	require.NoError(t, err)
	assert.Equal(t, result.Session.ID, claims.SessionID)

	// The replacement landed on the same row.
	stored, err := f.sessions.GetByID(context.Background(), result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, tokenResult.AccessToken, stored.AccessToken)
}

func TestListForUserNeverExposesTokens(t *testing.T) {
	f := newFixture(t)

	result := f.login(t, "alice", "correct horse battery", phoneSignals())

	listed, err := f.service.ListForUser(context.Background(), result.Session.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].AccessToken)
	assert.Empty(t, listed[0].RefreshToken)
}

func TestRevokeForeignSessionForbidden(t *testing.T) {
	f := newFixture(t)

	alice := f.login(t, "alice", "correct horse battery", phoneSignals())
	bob := f.login(t, "bob", "hunter2hunter2", laptopSignals())

	err := f.service.Revoke(context.Background(), alice.Session.ID, &bob.Session.ID)
	assert.ErrorIs(t, err, ErrUnauthorizedDeviceAction)

	_, _, err = f.service.Validate(context.Background(), bob.Session.ID)
	assert.NoError(t, err)
}

func TestRevokeDeviceSparesCurrentWhenAsked(t *testing.T) {
	f := newFixture(t)

	phone := f.login(t, "alice", "correct horse battery", phoneSignals())

	count, err := f.service.RevokeDevice(context.Background(), phone.Session.ID, nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, _, err = f.service.Validate(context.Background(), phone.Session.ID)
	assert.NoError(t, err)

	count, err = f.service.RevokeDevice(context.Background(), phone.Session.ID, nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, _, err = f.service.Validate(context.Background(), phone.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRenameDevice(t *testing.T) {
	f := newFixture(t)

	result := f.login(t, "alice", "correct horse battery", phoneSignals())

	require.NoError(t, f.service.RenameDevice(context.Background(), result.Session.ID, "Alice's iPhone"))

	stored, err := f.sessions.GetByID(context.Background(), result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice's iPhone", stored.DeviceName)
}
