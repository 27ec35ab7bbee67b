package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	SweepSessionsTaskName  = "sweepSessionsTask"
	SweepSessionsQueueName = "sweepSessionsQueue"
)

// SweepSessions garbage-collects session rows that stopped authenticating
// before the cutoff. Read-time filters already make those rows inert; the
// sweep only keeps storage bounded.
type SweepSessions struct {
	Cutoff time.Time `json:"cutoff"`
}

func NewSweepSessionsTask(cutoff time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepSessions{Cutoff: cutoff})
	if err != nil {
		return nil, fmt.Errorf("json data marshal failed: %w", err)
	}

	return asynq.NewTask(
		SweepSessionsTaskName,
		payload,
		asynq.MaxRetry(3),
		asynq.Queue(SweepSessionsQueueName),
	), nil
}
