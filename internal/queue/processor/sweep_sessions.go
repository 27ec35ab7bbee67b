package processor

import (
	"context"
	"encoding/json"

	"github.com/communa/backend/internal/queue/task"
	"github.com/communa/backend/internal/worker"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
)

type sweepSessionsProcessor struct {
	workers *worker.Workers
}

func NewSweepSessionsProcessor(workers *worker.Workers) *sweepSessionsProcessor {
	return &sweepSessionsProcessor{
		workers: workers,
	}
}

func (p *sweepSessionsProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var data task.SweepSessions
	if err := json.Unmarshal(t.Payload(), &data); err != nil {
		return errors.Wrap(err, "process sweep sessions task json unmarshal")
	}

	if _, err := p.workers.SessionSweeper.Sweep(ctx, data.Cutoff); err != nil {
		return errors.Wrap(err, "sweep sessions")
	}

	return nil
}
