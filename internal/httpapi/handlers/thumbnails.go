package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"thumbnailer/internal/httpkit"
	"thumbnailer/internal/pkg/errors"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/processor"
)

// GenerateThumbnails runs a job synchronously. Only a body that cannot be
// parsed or lacks a location is answered with 400; every later failure is
// reported inside a 200 result.
func (h *Handler) GenerateThumbnails(w http.ResponseWriter, r *http.Request) error {
	req, err := h.parse(w, r)
	if err != nil {
		return err
	}

	jobID := uuid.NewString()
	ctx := logger.ContextWithJobID(context.WithoutCancel(r.Context()), jobID)

	res := h.proc.Process(ctx, jobID, req)

	httpkit.WriteJSON(w, http.StatusOK, res)
	return nil
}

func (h *Handler) parse(w http.ResponseWriter, r *http.Request) (*processor.JobRequest, error) {
	body, err := httpkit.ReadBody(w, r)
	if err != nil {
		return nil, errors.MalformedRequest(err)
	}
	return processor.ParseRequest(body)
}
