package worker

import (
	"context"

	"thumbnailer/internal/models"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/processor"
)

// JobStore is the job persistence the consumers need.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, out *models.JobOutcome) error
}

type JobQueue interface {
	Pop(ctx context.Context) (string, error)
}

type JobProcessor interface {
	Process(ctx context.Context, jobID string, req *processor.JobRequest) *processor.JobResult
}

type Deps struct {
	Jobs        JobStore
	Queue       JobQueue
	Processor   JobProcessor
	Concurrency int
	Log         *logger.Logger
}
