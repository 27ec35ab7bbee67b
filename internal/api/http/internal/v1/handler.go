package v1

import (
	"github.com/communa/backend/internal/config"
	"github.com/communa/backend/internal/service"
	"github.com/communa/backend/pkg/auth"

	"github.com/gin-gonic/gin"
)

// @title Communa Backend API
// @version 1.0
// @description Device-session authentication API

// @BasePath /api/v1

// @securityDefinitions.apikey SessionAuth
// @in header
// @name X-Session-ID

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type Handler struct {
	services     *service.Services
	tokenManager auth.TokenManager
	config       *config.Config
}

func NewHandler(
	services *service.Services,
	tokenManager auth.TokenManager,
	config *config.Config,
) *Handler {
	return &Handler{
		services:     services,
		tokenManager: tokenManager,
		config:       config,
	}
}

func (h *Handler) Init(api *gin.RouterGroup) {
	v1 := api.Group("v1")

	h.initAuthRoutes(v1)
}
