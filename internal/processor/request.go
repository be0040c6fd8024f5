package processor

import (
	"encoding/json"
	"strings"

	"thumbnailer/internal/pkg/errors"
)

// DefaultToolArguments extracts one 960x540 thumbnail from the first 100
// frames of the input.
const DefaultToolArguments = " -i {input} -vf thumbnail=n=100,scale=960:540 -frames:v 1 {tempFolder}/Thumbnail%06d.jpg"

// JobRequest is a validated thumbnail request. Fields are read-only once
// ParseRequest returns.
type JobRequest struct {
	sourceLocation      string
	destinationLocation string
	toolArguments       string
	returnToolOutput    bool
}

// NewJobRequest builds a request from already validated values. Used by
// the queue consumer, which reads requests that were validated on enqueue.
func NewJobRequest(source, destination, toolArguments string, returnToolOutput bool) *JobRequest {
	return &JobRequest{
		sourceLocation:      source,
		destinationLocation: destination,
		toolArguments:       toolArguments,
		returnToolOutput:    returnToolOutput,
	}
}

func (r *JobRequest) SourceLocation() string      { return r.sourceLocation }
func (r *JobRequest) DestinationLocation() string { return r.destinationLocation }
func (r *JobRequest) ReturnToolOutput() bool      { return r.returnToolOutput }

// ToolArguments returns the caller's template, or "" when the default is used.
func (r *JobRequest) ToolArguments() string { return r.toolArguments }

// Template returns the command-line template the job runs with.
func (r *JobRequest) Template() string {
	if r.toolArguments == "" {
		return DefaultToolArguments
	}
	return r.toolArguments
}

type requestBody struct {
	SourceLocation      *string `json:"sourceLocation"`
	DestinationLocation *string `json:"destinationLocation"`
	ToolArguments       *string `json:"toolArguments"`
	ReturnToolOutput    bool    `json:"returnToolOutput"`

	// Field names accepted by earlier clients.
	InputURL        *string `json:"inputUrl"`
	OutputURL       *string `json:"outputUrl"`
	FFmpegArguments *string `json:"ffmpegArguments"`
}

// ParseRequest decodes and validates a request body. Only the presence of
// the two locations is checked; their syntax is checked when credentials
// are resolved.
func ParseRequest(body []byte) (*JobRequest, error) {
	var b requestBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, errors.MalformedRequest(err)
	}

	src := firstNonBlank(b.SourceLocation, b.InputURL)
	if src == "" {
		return nil, errors.MissingField("sourceLocation")
	}

	dst := firstNonBlank(b.DestinationLocation, b.OutputURL)
	if dst == "" {
		return nil, errors.MissingField("destinationLocation")
	}

	return &JobRequest{
		sourceLocation:      src,
		destinationLocation: dst,
		toolArguments:       firstNonBlank(b.ToolArguments, b.FFmpegArguments),
		returnToolOutput:    b.ReturnToolOutput,
	}, nil
}

func firstNonBlank(values ...*string) string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}
