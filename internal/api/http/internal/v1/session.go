package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/communa/backend/internal/domain"
	"github.com/communa/backend/internal/service"
	"github.com/communa/backend/pkg/device"
	"github.com/communa/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (h *Handler) initAuthRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")

	auth.POST("/login", h.login)
	auth.GET("/validate", h.validateSession)
	auth.GET("/validate/:sessionId", h.validateSession)

	authed := auth.Group("", h.sessionIdentityMiddleware)
	{
		authed.GET("/user", h.userBySession)
		authed.GET("/token", h.tokenBySession)
		authed.GET("/sessions", h.listSessions)
		authed.POST("/logout", h.logout)
		authed.POST("/logout/others", h.logoutOthers)
		authed.POST("/logout/all", h.logoutAll)
		authed.GET("/devices/sessions", h.deviceSessions)
		authed.POST("/devices/logout", h.logoutDevice)
		authed.PUT("/device-name", h.renameDevice)
	}

	// Legacy bearer-JWT path kept for clients that still send access tokens.
	bearer := auth.Group("", h.bearerAuthMiddleware)
	{
		bearer.GET("/me", h.userBySession)
	}
}

type loginRequest struct {
	Username          string `json:"username" binding:"required,min=3,max=254"`
	Password          string `json:"password" binding:"required,min=8,max=72"`
	DeviceName        string `json:"device_name" binding:"omitempty,max=100"`
	DeviceFingerprint string `json:"device_fingerprint" binding:"omitempty,fingerprint"`
	Platform          string `json:"platform" binding:"omitempty,max=50"`
	Language          string `json:"language" binding:"omitempty,max=35"`
	Timezone          string `json:"timezone" binding:"omitempty,max=64"`
	Screen            string `json:"screen" binding:"omitempty,max=30"`
}

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
}

type loginResponse struct {
	SessionID uuid.UUID    `json:"session_id"`
	DeviceID  uuid.UUID    `json:"device_id"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

// @Summary Login
// @Tags Auth
// @Description Authenticate with credentials and open (or reuse) a device session
// @ModuleID login
// @Accept  json
// @Produce  json
// @Param input body loginRequest true "credentials and device signals"
// @Success 200 {object} loginResponse
// @Failure 400 {object} ValidationErrorStruct
// @Failure 401 {object} ErrorStruct
// @Router /auth/login [post]
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationErrorResponse(c, err)
		return
	}

	result, err := h.services.Sessions.Login(c.Request.Context(), service.LoginInput{
		Username:   req.Username,
		Password:   req.Password,
		DeviceName: req.DeviceName,
		Signals: device.Signals{
			UserAgent:   c.Request.UserAgent(),
			Platform:    req.Platform,
			Language:    req.Language,
			Timezone:    req.Timezone,
			Screen:      req.Screen,
			IP:          c.ClientIP(),
			DeviceName:  req.DeviceName,
			Fingerprint: req.DeviceFingerprint,
		},
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			errorResponse(c, http.StatusUnauthorized, InvalidCredentialsCode)
			return
		}
		logger.Error("login failed", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, UnknownErrorCode)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		SessionID: result.Session.ID,
		DeviceID:  result.Session.DeviceID,
		ExpiresAt: result.Session.ExpiresAt,
		User:      toUserResponse(result.User),
	})
}

// @Summary User by session
// @Tags Auth
// @Description Resolve the session owner's profile
// @ModuleID userBySession
// @Produce  json
// @Success 200 {object} userResponse
// @Failure 401 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/user [get]
func (h *Handler) userBySession(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// @Summary Token by session
// @Tags Auth
// @Description Return the session's access token, refreshing it in place when expired
// @ModuleID tokenBySession
// @Produce  json
// @Success 200 {object} tokenResponse
// @Failure 401 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/token [get]
func (h *Handler) tokenBySession(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	result, err := h.services.Sessions.GetOrRefreshToken(c.Request.Context(), session.ID)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, denialCode(err))
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt,
	})
}

type sessionResponse struct {
	SessionID   uuid.UUID `json:"session_id"`
	DeviceID    uuid.UUID `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	DeviceClass string    `json:"device_class"`
	Platform    string    `json:"platform"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
	IP          string    `json:"ip"`
	LastActive  time.Time `json:"last_active"`
	IsActive    bool      `json:"is_active"`
	Current     bool      `json:"current"`
}

// @Summary List sessions
// @Tags Auth
// @Description List the caller's active sessions across devices
// @ModuleID listSessions
// @Produce  json
// @Success 200 {array} sessionResponse
// @Failure 401 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/sessions [get]
func (h *Handler) listSessions(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	sessions, err := h.services.Sessions.ListForUser(c.Request.Context(), session.ID)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, denialCode(err))
		return
	}

	c.JSON(http.StatusOK, toSessionResponses(sessions, session.ID))
}

type logoutRequest struct {
	TargetSessionID *uuid.UUID `json:"target_session_id" binding:"omitempty"`
}

// @Summary Logout
// @Tags Auth
// @Description Revoke the caller's session, or one of their other sessions
// @ModuleID logout
// @Accept  json
// @Produce  json
// @Param input body logoutRequest false "optional target session"
// @Success 200
// @Failure 401 {object} ErrorStruct
// @Failure 403 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/logout [post]
func (h *Handler) logout(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	var req logoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			validationErrorResponse(c, err)
			return
		}
	}

	if err := h.services.Sessions.Revoke(c.Request.Context(), session.ID, req.TargetSessionID); err != nil {
		h.revocationError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

type revokedCountResponse struct {
	Revoked int64 `json:"revoked"`
}

// @Summary Logout others
// @Tags Auth
// @Description Revoke every session of the caller except the current one
// @ModuleID logoutOthers
// @Produce  json
// @Success 200 {object} revokedCountResponse
// @Failure 401 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/logout/others [post]
func (h *Handler) logoutOthers(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	count, err := h.services.Sessions.RevokeOthers(c.Request.Context(), session.ID)
	if err != nil {
		h.revocationError(c, err)
		return
	}

	c.JSON(http.StatusOK, revokedCountResponse{Revoked: count})
}

// @Summary Logout all
// @Tags Auth
// @Description Revoke every session of the caller, current included
// @ModuleID logoutAll
// @Produce  json
// @Success 200 {object} revokedCountResponse
// @Failure 401 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/logout/all [post]
func (h *Handler) logoutAll(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	count, err := h.services.Sessions.RevokeAll(c.Request.Context(), session.ID)
	if err != nil {
		h.revocationError(c, err)
		return
	}

	c.JSON(http.StatusOK, revokedCountResponse{Revoked: count})
}

// @Summary Device sessions
// @Tags Auth
// @Description List active sessions on one device (default: the caller's device)
// @ModuleID deviceSessions
// @Produce  json
// @Param device_id query string false "device id, defaults to the caller's"
// @Success 200 {array} sessionResponse
// @Failure 401 {object} ErrorStruct
// @Failure 403 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/devices/sessions [get]
func (h *Handler) deviceSessions(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	deviceID, ok := optionalDeviceID(c, c.Query("device_id"))
	if !ok {
		return
	}

	sessions, err := h.services.Sessions.ListDeviceSessions(c.Request.Context(), session.ID, deviceID)
	if err != nil {
		h.revocationError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSessionResponses(sessions, session.ID))
}

type logoutDeviceRequest struct {
	DeviceID       string `json:"device_id" binding:"omitempty,uuid"`
	ExcludeCurrent bool   `json:"exclude_current"`
}

// @Summary Logout device
// @Tags Auth
// @Description Revoke every session on a device, optionally sparing the current one
// @ModuleID logoutDevice
// @Accept  json
// @Produce  json
// @Param input body logoutDeviceRequest false "device and exclusion flag"
// @Success 200 {object} revokedCountResponse
// @Failure 401 {object} ErrorStruct
// @Failure 403 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/devices/logout [post]
func (h *Handler) logoutDevice(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	var req logoutDeviceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			validationErrorResponse(c, err)
			return
		}
	}

	deviceID, ok := optionalDeviceID(c, req.DeviceID)
	if !ok {
		return
	}

	count, err := h.services.Sessions.RevokeDevice(c.Request.Context(), session.ID, deviceID, req.ExcludeCurrent)
	if err != nil {
		h.revocationError(c, err)
		return
	}

	c.JSON(http.StatusOK, revokedCountResponse{Revoked: count})
}

type renameDeviceRequest struct {
	DeviceName string `json:"device_name" binding:"required,max=100"`
}

// @Summary Rename device
// @Tags Auth
// @Description Set the display name of the caller's device
// @ModuleID renameDevice
// @Accept  json
// @Produce  json
// @Param input body renameDeviceRequest true "new device name"
// @Success 200
// @Failure 401 {object} ErrorStruct
// @Security SessionAuth
// @Router /auth/device-name [put]
func (h *Handler) renameDevice(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		errorResponse(c, http.StatusUnauthorized, SessionNotFoundCode)
		return
	}

	var req renameDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationErrorResponse(c, err)
		return
	}

	if err := h.services.Sessions.RenameDevice(c.Request.Context(), session.ID, req.DeviceName); err != nil {
		h.revocationError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

type validateResponse struct {
	Valid        bool          `json:"valid"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	LastActivity *time.Time    `json:"last_activity,omitempty"`
	User         *userResponse `json:"user,omitempty"`
}

// @Summary Validate session
// @Tags Auth
// @Description Check whether a session id still authenticates
// @ModuleID validateSession
// @Produce  json
// @Param sessionId path string false "session id (alternative to the X-Session-ID header)"
// @Success 200 {object} validateResponse
// @Failure 401 {object} validateResponse
// @Security SessionAuth
// @Router /auth/validate [get]
func (h *Handler) validateSession(c *gin.Context) {
	id, code := extractSessionID(c)
	if code != 0 {
		c.JSON(http.StatusUnauthorized, validateResponse{Valid: false})
		return
	}

	session, user, err := h.services.Sessions.Validate(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusUnauthorized, validateResponse{Valid: false})
		return
	}

	h.bumpLastActive(c, session.ID)

	resp := toUserResponse(user)
	c.JSON(http.StatusOK, validateResponse{
		Valid:        true,
		ExpiresAt:    &session.ExpiresAt,
		LastActivity: &session.LastActive,
		User:         &resp,
	})
}

func (h *Handler) revocationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorizedDeviceAction):
		errorResponse(c, http.StatusForbidden, DeviceActionForbiddenCode)
	case errors.Is(err, service.ErrSessionExpired), errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrUserNotFound):
		errorResponse(c, http.StatusUnauthorized, denialCode(err))
	default:
		logger.Error("session operation failed", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, UnknownErrorCode)
	}
}

func optionalDeviceID(c *gin.Context, raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, SessionCredentialMalformedCode)
		return nil, false
	}
	return &id, true
}

func toUserResponse(user *domain.User) userResponse {
	resp := userResponse{
		ID:       user.ID,
		Username: user.Username,
	}
	if user.Avatar.Valid {
		resp.Avatar = user.Avatar.String
	}
	return resp
}

func toSessionResponses(sessions []domain.Session, currentID uuid.UUID) []sessionResponse {
	out := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = sessionResponse{
			SessionID:   s.ID,
			DeviceID:    s.DeviceID,
			DeviceName:  s.DeviceName,
			DeviceClass: s.DeviceClass,
			Platform:    s.Platform,
			Browser:     s.Browser,
			OS:          s.OS,
			IP:          s.IP,
			LastActive:  s.LastActive,
			IsActive:    s.IsActive,
			Current:     s.ID == currentID,
		}
	}
	return out
}
