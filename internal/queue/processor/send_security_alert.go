package processor

import (
	"context"
	"encoding/json"

	"github.com/communa/backend/internal/queue/task"
	"github.com/communa/backend/internal/worker"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
)

type sendSecurityAlertProcessor struct {
	workers *worker.Workers
}

func NewSendSecurityAlertProcessor(workers *worker.Workers) *sendSecurityAlertProcessor {
	return &sendSecurityAlertProcessor{
		workers: workers,
	}
}

func (p *sendSecurityAlertProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var data task.SendSecurityAlert
	if err := json.Unmarshal(t.Payload(), &data); err != nil {
		return errors.Wrap(err, "process security alert task json unmarshal")
	}

	if err := p.workers.AlertSender.SendNewDeviceAlert(ctx, data.Email, data.Username, data.DeviceName, data.IP, data.LoginAt); err != nil {
		return errors.Wrap(err, "send new device alert")
	}

	return nil
}
