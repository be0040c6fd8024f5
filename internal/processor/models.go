package processor

import "thumbnailer/internal/pkg/errors"

// JobResult is the outcome of one pipeline run. It is reported with a
// success status even when IsSuccessful is false.
type JobResult struct {
	IsSuccessful bool   `json:"isSuccessful"`
	ErrorText    string `json:"errorText"`
	ToolOutput   string `json:"toolOutput,omitempty"`

	ExitCode int      `json:"-"`
	Uploaded []string `json:"-"`
	Codes    []string `json:"-"`
}

// NewJobResult folds the errors collected during a run into a result.
func NewJobResult(errs []*errors.Error, exitCode int, uploaded []string) *JobResult {
	codes := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			codes = append(codes, string(e.Code))
		}
	}

	return &JobResult{
		IsSuccessful: len(codes) == 0,
		ErrorText:    errors.Join(errs),
		ExitCode:     exitCode,
		Uploaded:     uploaded,
		Codes:        codes,
	}
}
