package asynqserver

import (
	"github.com/communa/backend/internal/cache"
	"github.com/communa/backend/internal/config"
	"github.com/communa/backend/internal/queue/processor"
	"github.com/communa/backend/internal/queue/task"
	"github.com/communa/backend/internal/worker"

	"github.com/hibiken/asynq"
)

func New(cfg config.Cache, workers *worker.Workers) (*asynq.Server, *asynq.ServeMux) {
	mux, queues := getQueues(workers)
	srv := asynq.NewServer(
		RedisOptions(cfg),
		asynq.Config{
			Concurrency: 10,
			LogLevel:    asynq.ErrorLevel,
			Queues:      queues,
		},
	)

	return srv, mux
}

func RedisOptions(cfg config.Cache) asynq.RedisConnOpt {
	var opts asynq.RedisConnOpt
	if cfg.Type == cache.RedisTypeCluster {
		opts = asynq.RedisClusterClientOpt{Addrs: cfg.RedisCluster.Addresses}
	} else {
		opts = asynq.RedisClientOpt{Addr: cfg.Redis.Address}
	}
	return opts
}

func getQueues(workers *worker.Workers) (*asynq.ServeMux, map[string]int) {
	mux := asynq.NewServeMux()
	mux.Handle(task.SendSecurityAlertTaskName, processor.NewSendSecurityAlertProcessor(workers))
	mux.Handle(task.SweepSessionsTaskName, processor.NewSweepSessionsProcessor(workers))
	queues := map[string]int{
		task.SendSecurityAlertQueueName: 1,
		task.SweepSessionsQueueName:     1,
	}
	return mux, queues
}
