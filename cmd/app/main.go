package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiHttp "github.com/communa/backend/internal/api/http"
	"github.com/communa/backend/internal/cache"
	"github.com/communa/backend/internal/config"
	"github.com/communa/backend/internal/db"
	"github.com/communa/backend/internal/queue/asynqserver"
	"github.com/communa/backend/internal/queue/client"
	"github.com/communa/backend/internal/queue/task"
	"github.com/communa/backend/internal/repository"
	"github.com/communa/backend/internal/server"
	"github.com/communa/backend/internal/service"
	"github.com/communa/backend/internal/worker"
	"github.com/communa/backend/pkg/auth"
	"github.com/communa/backend/pkg/email/smtp"
	"github.com/communa/backend/pkg/hash"
	"github.com/communa/backend/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	// Init cfg from environment variables
	cfg := config.MustLoad()

	// Dependencies
	appLogger := logger.SetupLogger(cfg.Env, cfg.LogLevel)

	appLogger.Info("starting backend api", zap.String("env", cfg.Env))
	appLogger.Debug("debug messages are enabled")

	// Init database
	dbMySQL, err := db.New(cfg.Database)
	if err != nil {
		appLogger.Error("mysql connect problem", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		err = dbMySQL.Close()
		if err != nil {
			appLogger.Error("error when closing", zap.Error(err))
		}
	}()
	appLogger.Info("mysql connection done")

	redisClient, err := cache.NewRedis(cfg.Cache)
	if err != nil {
		appLogger.Error("redis connect problem", zap.Error(err))
		os.Exit(1)
	}
	appLogger.Info("redis connection done")

	hasher := hash.NewBcryptHasher(0)

	emailSender, err := smtp.NewSMTPSender(cfg.SMTP.From, cfg.SMTP.Pass, cfg.SMTP.Host, cfg.SMTP.Port)
	if err != nil {
		appLogger.Error("smtp sender creation failed", zap.Error(err))
		return
	}

	// A missing or reused signing secret stops the process here, before it
	// can serve a single request.
	tokenManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		appLogger.Error("auth manager creation err", zap.Error(err))
		return
	}

	// Services, Repos & API Handlers
	repos := repository.NewRepositories(dbMySQL)
	services := service.NewServices(service.Deps{
		Config:       cfg,
		Hasher:       hasher,
		TokenManager: tokenManager,
		Repos:        repos,
	})
	handlers := apiHttp.NewHandlers(services, tokenManager, cfg)

	// Task queue
	queueClient := asynq.NewClient(asynqserver.RedisOptions(cfg.Cache))
	restoreClient := client.SetClient(queueClient)
	defer restoreClient()

	workers := worker.NewWorkers(worker.Deps{
		Redis:         redisClient,
		Repos:         repos,
		EmailProvider: emailSender,
		Config:        cfg,
	})
	queueServer, queueMux := asynqserver.New(cfg.Cache, workers)
	go func() {
		if err := queueServer.Run(queueMux); err != nil {
			appLogger.Error("asynq server stopped", zap.Error(err))
		}
	}()

	sweepDone := make(chan struct{})
	go runSessionSweepScheduler(cfg.Auth, queueClient, sweepDone)

	// HTTP Server
	srv := server.NewServer(cfg, handlers.Init(cfg))
	go func() {
		if err := srv.Run(); !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("error occurred while running http server", zap.Error(err))
		}
	}()
	appLogger.Info("server started")

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	<-quit

	close(sweepDone)
	queueServer.Shutdown()

	const timeout = 5 * time.Second

	ctx, shutdown := context.WithTimeout(context.Background(), timeout)
	defer shutdown()

	if err := srv.Stop(ctx); err != nil {
		appLogger.Error("failed to stop server", zap.Error(err))
	}

	appLogger.Info("app stopped")
}

// runSessionSweepScheduler periodically enqueues the session GC task.
// Rows past expiry plus the grace window get physically deleted; the
// read-time liveness filters never depend on it.
func runSessionSweepScheduler(cfg config.AuthConfig, queueClient *asynq.Client, done <-chan struct{}) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sweepTask, err := task.NewSweepSessionsTask(time.Now().Add(-cfg.SweepGracePeriod))
			if err != nil {
				logger.Error("build sweep task failed", zap.Error(err))
				continue
			}
			if _, err := queueClient.Enqueue(sweepTask); err != nil {
				logger.Error("enqueue sweep task failed", zap.Error(err))
			}
		}
	}
}
