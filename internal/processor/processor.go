// Package processor runs a thumbnail job: resolve credentials, run the
// extraction tool in a private workspace, upload what it produced and
// report the outcome.
package processor

import (
	"context"
	"time"

	"thumbnailer/internal/pkg/errors"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/storage"
)

type Deps struct {
	Registry        *storage.Registry
	ToolPath        string
	TempRoot        string
	WorkspacePrefix string
	ToolTimeout     time.Duration
	CredentialTTL   time.Duration
	Log             *logger.Logger
}

type Processor struct {
	toolPath string
	log      *logger.Logger

	credentials *CredentialResolver
	workspaces  *WorkspaceManager
	runner      *ExtractionRunner
	outputs     *OutputHandler
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}

	registry := d.Registry
	if registry == nil {
		registry = storage.NewRegistry()
	}

	return &Processor{
		toolPath:    d.ToolPath,
		log:         log.WithComponent("processor"),
		credentials: NewCredentialResolver(registry, d.CredentialTTL),
		workspaces:  NewWorkspaceManager(d.TempRoot, d.WorkspacePrefix, log),
		runner:      NewExtractionRunner(d.ToolTimeout),
		outputs:     NewOutputHandler(),
	}
}

// Process runs one job to completion and never returns an error: every
// failure past validation is reported in the result. The workspace is
// removed on every path once it has been created.
func (p *Processor) Process(ctx context.Context, jobID string, req *JobRequest) *JobResult {
	ctx = logger.ContextWithJobID(ctx, jobID)
	log := p.log.FromContext(ctx)
	started := time.Now()

	var errs []*errors.Error
	record := func(err error) {
		if err == nil {
			return
		}
		var e *errors.Error
		if !errors.As(err, &e) {
			e = errors.Wrap(err, "processor", "job failed")
		}
		log.Error("job step failed", "code", string(e.Code), "op", e.Op, "error", e.Error())
		errs = append(errs, e)
	}

	finish := func(exitCode int, uploaded []string, output string) *JobResult {
		res := NewJobResult(errs, exitCode, uploaded)
		if req.ReturnToolOutput() {
			res.ToolOutput = output
		}
		log.Info("job finished",
			"successful", res.IsSuccessful,
			"uploaded", len(uploaded),
			"exit_code", exitCode,
			"duration", time.Since(started).String(),
		)
		return res
	}

	log.Info("job accepted",
		"source", Redact(req.SourceLocation()),
		"destination", Redact(req.DestinationLocation()),
		"arguments", req.Template(),
	)

	ws, err := p.workspaces.Acquire()
	if err != nil {
		record(err)
		return finish(ExitCodeNotRun, nil, "")
	}
	defer p.workspaces.Release(ws)
	log.Debug("workspace acquired", "path", ws.Path)

	src, err := p.credentials.Resolve(ctx, req.SourceLocation(), AccessRead)
	if err != nil {
		record(err)
		return finish(ExitCodeNotRun, nil, "")
	}
	dst, err := p.credentials.Resolve(ctx, req.DestinationLocation(), AccessWrite)
	if err != nil {
		record(err)
		return finish(ExitCodeNotRun, nil, "")
	}
	log.Debug("locations resolved", "source_minted", src.Minted, "destination_minted", dst.Minted)

	cmd, err := BuildCommand(p.toolPath, req.Template(), src.URL, ws.Path)
	if err != nil {
		record(err)
		return finish(ExitCodeNotRun, nil, "")
	}
	log.Info("running extraction tool", "path", cmd.Path, "args", len(cmd.Args))

	run, err := p.runner.Run(ctx, cmd, log)
	if run == nil {
		record(err)
		return finish(ExitCodeNotRun, nil, "")
	}
	// A failed run may still have produced usable frames.
	record(err)

	published := p.outputs.Publish(ctx, ws, dst, log)
	errs = append(errs, published.Errors...)

	return finish(run.ExitCode, published.Uploaded, run.Output)
}
