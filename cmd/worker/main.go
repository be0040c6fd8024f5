package main

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"thumbnailer/internal/config"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/pkg/shutdown"
	"thumbnailer/internal/processor"
	"thumbnailer/internal/repositories"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/worker"
	"thumbnailer/internal/worker/queue"
)

func main() {
	cfg, err := config.Load("thumbnailer-worker")
	if err != nil {
		logger.New(logger.Config{ServiceName: "thumbnailer-worker"}).LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: cfg.ServiceName,
		AddSource:   cfg.LogSource,
	})

	if !cfg.AsyncEnabled() {
		log.LogFatal("worker needs a job store and a queue", errors.New("DATABASE_URL and REDIS_ADDR are required"))
	}

	ctx := context.Background()

	// A running job is allowed to finish before the process exits.
	shutdownTimeout := shutdown.DefaultTimeout
	if cfg.ToolTimeout > 0 {
		shutdownTimeout = cfg.ToolTimeout + time.Minute
	}
	shutdownMgr := shutdown.NewManager(log, shutdownTimeout)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	jobs := repositories.NewJobRepository(pool)
	if err := jobs.EnsureSchema(ctx); err != nil {
		log.LogFatal("failed to prepare job table", err)
	}

	registry, err := storage.FromConfig(ctx, cfg.Storage, log)
	if err != nil {
		log.LogFatal("failed to initialize storage providers", err)
	}

	proc := processor.New(processor.Deps{
		Registry:        registry,
		ToolPath:        cfg.ToolPath,
		TempRoot:        cfg.TempRoot,
		WorkspacePrefix: cfg.WorkspacePrefix,
		ToolTimeout:     cfg.ToolTimeout,
		CredentialTTL:   cfg.CredentialTTL,
		Log:             log,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(runCtx, worker.Deps{
			Jobs:        jobs,
			Queue:       queue.NewRedisQueue(rdb, cfg.QueueName),
			Processor:   proc,
			Concurrency: cfg.WorkerConcurrency,
			Log:         log,
		})
	}()

	shutdownMgr.Register("worker", func(ctx context.Context) error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	log.Info("thumbnailer worker started",
		"queue", cfg.QueueName,
		"concurrency", cfg.WorkerConcurrency,
	)

	shutdownMgr.Wait()
}
