package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"thumbnailer/internal/models"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/processor"
	"thumbnailer/internal/storage"
)

type JobProcessor interface {
	Process(ctx context.Context, jobID string, req *processor.JobRequest) *processor.JobResult
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
}

type JobQueue interface {
	Push(ctx context.Context, jobID string) error
}

type Deps struct {
	Processor JobProcessor
	Registry  *storage.Registry
	ToolPath  string
	Service   string
	Log       *logger.Logger

	// Async mode; all nil when disabled.
	Jobs  JobStore
	Queue JobQueue
	Pool  *pgxpool.Pool
	RDB   *redis.Client
}

type Handler struct {
	proc     JobProcessor
	registry *storage.Registry
	toolPath string
	service  string
	log      *logger.Logger

	jobs  JobStore
	queue JobQueue
	pool  *pgxpool.Pool
	rdb   *redis.Client
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		proc:     d.Processor,
		registry: d.Registry,
		toolPath: d.ToolPath,
		service:  d.Service,
		log:      log.WithComponent("http"),
		jobs:     d.Jobs,
		queue:    d.Queue,
		pool:     d.Pool,
		rdb:      d.RDB,
	}
}

// AsyncEnabled reports whether the job endpoints have a store and a queue.
func (h *Handler) AsyncEnabled() bool {
	return h.jobs != nil && h.queue != nil
}
