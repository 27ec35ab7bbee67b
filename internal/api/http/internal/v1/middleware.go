package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/communa/backend/internal/domain"
	"github.com/communa/backend/internal/service"
	"github.com/communa/backend/pkg/auth"
	"github.com/communa/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionIDHeader     = "X-Session-ID"
	sessionIDParam      = "sessionId"
	authorizationHeader = "Authorization"

	sessionCtx = "session"
	userCtx    = "user"
)

// extractSessionID pulls the session id from the dedicated header, falling
// back to the URL parameter. The header wins when both are present.
func extractSessionID(c *gin.Context) (uuid.UUID, ErrorCode) {
	raw := c.GetHeader(sessionIDHeader)
	if raw == "" {
		raw = c.Param(sessionIDParam)
	}
	if raw == "" {
		return uuid.Nil, SessionCredentialMissingCode
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, SessionCredentialMalformedCode
	}

	return id, 0
}

// sessionIdentityMiddleware resolves the caller through the session store.
// Each failure mode gets its own code so clients can re-authenticate on
// expiry without ever retrying a revoked session.
func (h *Handler) sessionIdentityMiddleware(c *gin.Context) {
	id, code := extractSessionID(c)
	if code != 0 {
		errorResponse(c, http.StatusUnauthorized, code)
		return
	}

	session, user, err := h.services.Sessions.Validate(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, denialCode(err))
		return
	}

	h.bumpLastActive(c, session.ID)

	c.Set(sessionCtx, session)
	c.Set(userCtx, user)
	c.Next()
}

// bearerAuthMiddleware is the legacy stateless-JWT entry point. Tokens are
// still checked against the session table, so revocation bites both paths.
func (h *Handler) bearerAuthMiddleware(c *gin.Context) {
	header := c.GetHeader(authorizationHeader)
	if header == "" {
		errorResponse(c, http.StatusUnauthorized, SessionCredentialMissingCode)
		return
	}

	headerParts := strings.Split(header, " ")
	if len(headerParts) != 2 || headerParts[0] != "Bearer" || headerParts[1] == "" {
		errorResponse(c, http.StatusUnauthorized, SessionCredentialMalformedCode)
		return
	}

	claims, err := h.tokenManager.Validate(headerParts[1], auth.ClassAccess)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			errorResponse(c, http.StatusUnauthorized, SessionExpiredCode)
			return
		}
		errorResponse(c, http.StatusUnauthorized, SessionCredentialMalformedCode)
		return
	}

	session, user, err := h.services.Sessions.Validate(c.Request.Context(), claims.SessionID)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, denialCode(err))
		return
	}

	h.bumpLastActive(c, session.ID)

	c.Set(sessionCtx, session)
	c.Set(userCtx, user)
	c.Next()
}

// bumpLastActive is fire and forget: the bump rides on its own context and
// a failure never fails the request it belongs to.
func (h *Handler) bumpLastActive(c *gin.Context, sessionID uuid.UUID) {
	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()

	go func() {
		if err := h.services.Sessions.Touch(context.Background(), sessionID, ip, userAgent); err != nil {
			logger.Warn("bump last active failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}()
}

func denialCode(err error) ErrorCode {
	switch {
	case errors.Is(err, service.ErrSessionExpired):
		return SessionExpiredCode
	case errors.Is(err, service.ErrSessionNotFound):
		return SessionNotFoundCode
	case errors.Is(err, service.ErrUserNotFound):
		return UserNotFoundCode
	default:
		logger.Error("session resolution failed", zap.Error(err))
		return UnknownErrorCode
	}
}

func (h *Handler) currentSession(c *gin.Context) (*domain.Session, bool) {
	v, ok := c.Get(sessionCtx)
	if !ok {
		return nil, false
	}
	session, ok := v.(*domain.Session)
	return session, ok
}

func (h *Handler) currentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(userCtx)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok
}
