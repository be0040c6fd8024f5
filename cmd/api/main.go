package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"thumbnailer/internal/config"
	"thumbnailer/internal/httpapi"
	"thumbnailer/internal/httpapi/handlers"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/pkg/shutdown"
	"thumbnailer/internal/processor"
	"thumbnailer/internal/repositories"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/worker/queue"
)

func main() {
	cfg, err := config.Load("thumbnailer-api")
	if err != nil {
		logger.New(logger.Config{ServiceName: "thumbnailer-api"}).LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: cfg.ServiceName,
		AddSource:   cfg.LogSource,
	})

	log.Info("starting thumbnailer API",
		"tool", cfg.ToolPath,
		"temp_root", cfg.TempRoot,
		"tool_timeout", cfg.ToolTimeout.String(),
		"async", cfg.AsyncEnabled(),
	)

	ctx := context.Background()

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	log.Info("initializing storage providers")
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

	hd := handlers.Deps{
		Processor: proc,
		Registry:  registry,
		ToolPath:  cfg.ToolPath,
		Service:   cfg.ServiceName,
		Log:       log,
	}

	if cfg.AsyncEnabled() {
		pool, rdb := connect(ctx, cfg, log, shutdownMgr)

		jobs := repositories.NewJobRepository(pool)
		if err := jobs.EnsureSchema(ctx); err != nil {
			log.LogFatal("failed to prepare job table", err)
		}

		hd.Jobs = jobs
		hd.Queue = queue.NewRedisQueue(rdb, cfg.QueueName)
		hd.Pool = pool
		hd.RDB = rdb
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers:       hd,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Log:            log,
	})

	// Synchronous jobs hold the response open for up to ToolTimeout plus
	// the uploads; zero leaves writes unbounded.
	var writeTimeout time.Duration
	if cfg.ToolTimeout > 0 {
		writeTimeout = cfg.ToolTimeout + 5*time.Minute
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTPPort,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}

func connect(ctx context.Context, cfg config.Config, log *logger.Logger, mgr *shutdown.Manager) (*pgxpool.Pool, *redis.Client) {
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	mgr.RegisterSimple("postgres", pool.Close)

	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	log.Info("PostgreSQL connected")

	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	mgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	return pool, rdb
}
