package worker

import (
	"context"
	"time"

	"github.com/communa/backend/internal/config"
	"github.com/communa/backend/internal/repository"
	emailProvider "github.com/communa/backend/pkg/email"

	"github.com/redis/go-redis/v9"
)

type Workers struct {
	AlertSender    AlertSender
	SessionSweeper SessionSweeper
}

type Deps struct {
	Redis         redis.UniversalClient
	Repos         *repository.Repositories
	EmailProvider emailProvider.Sender
	Config        *config.Config
}

type AlertSender interface {
	SendNewDeviceAlert(ctx context.Context, email, username, deviceName, ip string, loginAt time.Time) error
}

type SessionSweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewWorkers(deps Deps) *Workers {
	return &Workers{
		AlertSender:    newAlertSender(deps.EmailProvider, deps.Config.Email),
		SessionSweeper: newSessionSweeper(deps.Repos.Sessions),
	}
}
