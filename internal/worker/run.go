package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"thumbnailer/internal/models"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/processor"
	"thumbnailer/internal/repositories"
)

const popRetryDelay = time.Second

// Run starts Concurrency consumers and blocks until ctx is canceled. A job
// that has started when ctx is canceled still runs to completion.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithComponent("worker")

	n := d.Concurrency
	if n < 1 {
		n = 1
	}

	log.Info("worker started", "concurrency", n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		consumerLog := &logger.Logger{Logger: log.With("consumer", i)}
		g.Go(func() error {
			return consume(gctx, d, consumerLog)
		})
	}
	return g.Wait()
}

func consume(ctx context.Context, d Deps, log *logger.Logger) error {
	for {
		if ctx.Err() != nil {
			log.Info("worker context canceled, stopping")
			return nil
		}

		jobID, err := d.Queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return nil
			}

			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
			case <-time.After(popRetryDelay):
			}
			continue
		}

		if jobID == "" {
			continue
		}

		handle(ctx, d, log, jobID)
	}
}

func handle(ctx context.Context, d Deps, log *logger.Logger, jobID string) {
	jobCtx := logger.ContextWithJobID(context.WithoutCancel(ctx), jobID)
	jobLog := log.WithJobID(jobID)

	job, err := d.Jobs.Get(jobCtx, jobID)
	if err != nil {
		jobLog.Error("load job failed", "error", err.Error())
		return
	}

	if job.Status.Terminal() {
		jobLog.Info("job already finished, skipping", "status", string(job.Status))
		return
	}

	if err := d.Jobs.MarkRunning(jobCtx, jobID); err != nil {
		if errors.Is(err, repositories.ErrJobNotQueued) {
			jobLog.Info("job already claimed, skipping", "status", string(job.Status))
			return
		}
		jobLog.Error("claim job failed", "error", err.Error())
		return
	}

	jobLog.Info("processing job")
	startTime := time.Now()

	req := processor.NewJobRequest(job.SourceLocation, job.DestinationLocation, job.ToolArguments, job.ReturnToolOutput)
	res := d.Processor.Process(jobCtx, jobID, req)

	out := &models.JobOutcome{
		IsSuccessful: res.IsSuccessful,
		ErrorText:    res.ErrorText,
		ToolOutput:   res.ToolOutput,
		ExitCode:     res.ExitCode,
		Uploaded:     res.Uploaded,
	}
	if err := d.Jobs.Finish(jobCtx, jobID, out); err != nil {
		jobLog.Error("record job result failed", "error", err.Error())
		return
	}

	if res.IsSuccessful {
		jobLog.Info("job completed", "duration_ms", time.Since(startTime).Milliseconds())
	} else {
		jobLog.Warn("job failed",
			"error", res.ErrorText,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	}
}
