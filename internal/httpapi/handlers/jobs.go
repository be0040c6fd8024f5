package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"thumbnailer/internal/httpkit"
	"thumbnailer/internal/models"
	"thumbnailer/internal/pkg/errors"
	"thumbnailer/internal/processor"
	"thumbnailer/internal/repositories"
)

// PostJob validates a request like GenerateThumbnails, stores it as a
// queued job and hands its ID to the workers.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	req, err := h.parse(w, r)
	if err != nil {
		return err
	}

	job := &models.Job{
		ID:                  uuid.NewString(),
		SourceLocation:      req.SourceLocation(),
		DestinationLocation: req.DestinationLocation(),
		ToolArguments:       req.ToolArguments(),
		ReturnToolOutput:    req.ReturnToolOutput(),
	}

	if err := h.jobs.Create(ctx, job); err != nil {
		return errors.Wrap(err, "jobs.create", "db insert failed")
	}

	if err := h.queue.Push(ctx, job.ID); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.enqueue", "queue push failed").
			WithField("job_id", job.ID)
	}

	h.log.FromContext(ctx).Info("job queued", "job_id", job.ID)

	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": redacted(job)})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return errors.NotFound("job", jobID)
		}
		return errors.Wrap(err, "jobs.get", "db query failed")
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": redacted(job)})
	return nil
}

// redacted strips credentials from the stored locations.
func redacted(j *models.Job) *models.Job {
	cp := *j
	cp.SourceLocation = processor.Redact(j.SourceLocation)
	cp.DestinationLocation = processor.Redact(j.DestinationLocation)
	return &cp
}
