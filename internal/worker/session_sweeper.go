package worker

import (
	"context"
	"time"

	"github.com/communa/backend/internal/repository"
	"github.com/communa/backend/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type sessionSweeper struct {
	sessions repository.Sessions
}

func newSessionSweeper(sessions repository.Sessions) *sessionSweeper {
	return &sessionSweeper{
		sessions: sessions,
	}
}

func (s *sessionSweeper) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := s.sessions.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "sweep sessions")
	}

	if deleted > 0 {
		logger.Info("swept dead sessions", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}

	return deleted, nil
}
