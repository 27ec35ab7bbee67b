package v1

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/communa/backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) *gin.Context {
	t.Helper()

	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/auth/validate", nil)
	return c
}

func TestExtractSessionIDFromHeader(t *testing.T) {
	c := testContext(t)
	id := uuid.New()
	c.Request.Header.Set(sessionIDHeader, id.String())

	got, code := extractSessionID(c)
	require.EqualValues(t, 0, code)
	assert.Equal(t, id, got)
}

func TestExtractSessionIDFromParam(t *testing.T) {
	c := testContext(t)
	id := uuid.New()
	c.Params = gin.Params{{Key: sessionIDParam, Value: id.String()}}

	got, code := extractSessionID(c)
	require.EqualValues(t, 0, code)
	assert.Equal(t, id, got)
}

func TestExtractSessionIDHeaderWinsOverParam(t *testing.T) {
	c := testContext(t)
	headerID := uuid.New()
	paramID := uuid.New()
	c.Request.Header.Set(sessionIDHeader, headerID.String())
	c.Params = gin.Params{{Key: sessionIDParam, Value: paramID.String()}}

	got, code := extractSessionID(c)
	require.EqualValues(t, 0, code)
	assert.Equal(t, headerID, got)
}

func TestExtractSessionIDMissing(t *testing.T) {
	c := testContext(t)

	_, code := extractSessionID(c)
	assert.EqualValues(t, SessionCredentialMissingCode, code)
}

func TestExtractSessionIDMalformed(t *testing.T) {
	c := testContext(t)
	c.Request.Header.Set(sessionIDHeader, "not-a-uuid")

	_, code := extractSessionID(c)
	assert.EqualValues(t, SessionCredentialMalformedCode, code)
}

func TestDenialCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{service.ErrSessionExpired, SessionExpiredCode},
		{service.ErrSessionNotFound, SessionNotFoundCode},
		{service.ErrUserNotFound, UserNotFoundCode},
		{errors.New("database is down"), UnknownErrorCode},
	}

	for _, tc := range cases {
		assert.EqualValues(t, tc.code, denialCode(tc.err))
	}
}
