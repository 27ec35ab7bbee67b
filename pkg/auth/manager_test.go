package auth

import (
	"testing"
	"time"

	"github.com/communa/backend/internal/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managerConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSigningKey:  "access-secret",
		RefreshSigningKey: "refresh-secret",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   168 * time.Hour,
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.AuthConfig)
	}{
		{"empty access key", func(c *config.AuthConfig) { c.AccessSigningKey = "" }},
		{"empty refresh key", func(c *config.AuthConfig) { c.RefreshSigningKey = "" }},
		{"equal keys", func(c *config.AuthConfig) { c.RefreshSigningKey = c.AccessSigningKey }},
		{"zero access ttl", func(c *config.AuthConfig) { c.AccessTokenTTL = 0 }},
		{"zero refresh ttl", func(c *config.AuthConfig) { c.RefreshTokenTTL = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := managerConfig()
			tc.mutate(&cfg)

			_, err := NewManager(cfg)
			assert.Error(t, err)
		})
	}
}

func TestMintAndValidateRoundTrip(t *testing.T) {
	manager, err := NewManager(managerConfig())
	require.NoError(t, err)

	userID := uuid.New()
	sessionID := uuid.New()
	deviceID := uuid.New()

	pair, err := manager.Mint(userID, sessionID, deviceID)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := manager.Validate(pair.AccessToken, ClassAccess)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, deviceID, claims.DeviceID)
	assert.Equal(t, ClassAccess, claims.Class)

	gotUserID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, gotUserID)

	refreshClaims, err := manager.Validate(pair.RefreshToken, ClassRefresh)
	require.NoError(t, err)
	assert.Equal(t, sessionID, refreshClaims.SessionID)
	assert.Equal(t, ClassRefresh, refreshClaims.Class)
}

func TestValidateRejectsWrongClass(t *testing.T) {
	manager, err := NewManager(managerConfig())
	require.NoError(t, err)

	pair, err := manager.Mint(uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)

	// A refresh token presented as an access token must never pass, and the
	// failure is malformed, not expired.
	_, err = manager.Validate(pair.RefreshToken, ClassAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = manager.Validate(pair.AccessToken, ClassRefresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestValidateExpiredToken(t *testing.T) {
	cfg := managerConfig()
	cfg.AccessTokenTTL = -time.Minute
	manager, err := NewManager(cfg)
	require.NoError(t, err)

	access, _, err := manager.MintAccess(uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = manager.Validate(access, ClassAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateGarbageToken(t *testing.T) {
	manager, err := NewManager(managerConfig())
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := manager.Validate(token, ClassAccess)
		assert.ErrorIs(t, err, ErrTokenMalformed)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	manager, err := NewManager(managerConfig())
	require.NoError(t, err)

	otherCfg := managerConfig()
	otherCfg.AccessSigningKey = "other-access-secret"
	otherCfg.RefreshSigningKey = "other-refresh-secret"
	other, err := NewManager(otherCfg)
	require.NoError(t, err)

	access, _, err := other.MintAccess(uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = manager.Validate(access, ClassAccess)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}
