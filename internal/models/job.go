package models

import "time"

type JobStatus string

const (
	JobQueued  JobStatus = "QUEUED"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job is a queued thumbnail request and, once finished, its outcome.
type Job struct {
	ID                  string      `json:"id"`
	Status              JobStatus   `json:"status"`
	SourceLocation      string      `json:"sourceLocation"`
	DestinationLocation string      `json:"destinationLocation"`
	ToolArguments       string      `json:"toolArguments,omitempty"`
	ReturnToolOutput    bool        `json:"returnToolOutput"`
	Result              *JobOutcome `json:"result,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	StartedAt           *time.Time  `json:"started_at,omitempty"`
	FinishedAt          *time.Time  `json:"finished_at,omitempty"`
}

type JobOutcome struct {
	IsSuccessful bool     `json:"isSuccessful"`
	ErrorText    string   `json:"errorText"`
	ToolOutput   string   `json:"toolOutput,omitempty"`
	ExitCode     int      `json:"exitCode"`
	Uploaded     []string `json:"uploaded"`
}
