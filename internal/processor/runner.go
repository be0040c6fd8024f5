package processor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sync/errgroup"

	"thumbnailer/internal/pkg/errors"
	"thumbnailer/internal/pkg/logger"
)

const (
	// maxToolOutput bounds the tool output kept for the job result.
	maxToolOutput = 64 << 10
	// maxLineLength bounds a single logged line.
	maxLineLength = 1 << 20
	// defaultWaitDelay bounds pipe draining after the tool exits or is killed.
	defaultWaitDelay = 5 * time.Second
)

// ExitCodeNotRun marks a result whose tool never ran to completion.
const ExitCodeNotRun = -1

// ExtractionCommand is a fully substituted tool invocation.
type ExtractionCommand struct {
	Path string
	// Line is the substituted argument line, as logged.
	Line string
	Args []string
}

// BuildCommand turns single quotes in template into double quotes, splits
// it with POSIX shell quoting rules and then substitutes {input} with the
// source and {tempFolder} with the workspace path inside each argument, so
// neither value is ever re-split. Line is the substituted template as
// logged. The tool is never run through a shell.
func BuildCommand(toolPath, template, source, workspace string) (*ExtractionCommand, error) {
	normalized := strings.ReplaceAll(template, "'", `"`)

	args, err := shellquote.Split(normalized)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeToolLaunchFailure, "runner.build", "could not split tool arguments")
	}

	sub := strings.NewReplacer("{input}", source, "{tempFolder}", workspace)
	for i, a := range args {
		args[i] = sub.Replace(a)
	}

	line := strings.ReplaceAll(normalized, "{input}", `"`+source+`"`)
	line = strings.ReplaceAll(line, "{tempFolder}", workspace)

	return &ExtractionCommand{Path: toolPath, Line: line, Args: args}, nil
}

// RunResult describes a finished tool run.
type RunResult struct {
	ExitCode int
	Output   string
	TimedOut bool
	Duration time.Duration
}

type ExtractionRunner struct {
	timeout   time.Duration
	waitDelay time.Duration
}

// NewExtractionRunner returns a runner. A zero timeout lets the tool run
// until it exits.
func NewExtractionRunner(timeout time.Duration) *ExtractionRunner {
	return &ExtractionRunner{timeout: timeout, waitDelay: defaultWaitDelay}
}

// Run starts the tool and blocks until it exits, forwarding stdout and
// stderr to log line by line with "O: " and "E: " prefixes.
//
// A start failure returns CodeToolLaunchFailure and a nil result. A
// non-zero exit or a timeout returns the result together with
// CodeToolExecutionFailure.
func (r *ExtractionRunner) Run(ctx context.Context, cmd *ExtractionCommand, log *logger.Logger) (*RunResult, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.WaitDelay = r.waitDelay

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	c.Stdout = outW
	c.Stderr = errW

	tail := newTailBuffer(maxToolOutput)

	var g errgroup.Group
	g.Go(func() error { return drain(outR, "O: ", log, tail) })
	g.Go(func() error { return drain(errR, "E: ", log, tail) })

	started := time.Now()
	if err := c.Start(); err != nil {
		outW.Close()
		errW.Close()
		_ = g.Wait()
		return nil, errors.WrapWithCode(err, errors.CodeToolLaunchFailure, "runner.start", "could not start extraction tool").
			WithField("path", cmd.Path)
	}
	log.Info("extraction tool started", "pid", c.Process.Pid)

	waitErr := c.Wait()
	outW.Close()
	errW.Close()
	if err := g.Wait(); err != nil {
		log.Warn("tool output draining failed", "error", err.Error())
	}

	res := &RunResult{
		ExitCode: c.ProcessState.ExitCode(),
		Output:   tail.String(),
		TimedOut: r.timeout > 0 && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil,
		Duration: time.Since(started),
	}

	log.Info("extraction tool exited", "exit_code", res.ExitCode, "duration", res.Duration.String())

	switch {
	case res.TimedOut:
		return res, errors.WrapWithCode(runCtx.Err(), errors.CodeToolExecutionFailure, "runner.wait",
			fmt.Sprintf("extraction tool timed out after %s", r.timeout))
	case waitErr != nil && res.ExitCode > 0:
		return res, errors.Newf(errors.CodeToolExecutionFailure, "extraction tool exited with code %d", res.ExitCode)
	case waitErr != nil:
		return res, errors.WrapWithCode(waitErr, errors.CodeToolExecutionFailure, "runner.wait", "extraction tool did not exit cleanly")
	}

	return res, nil
}

// drain logs every line read from rd and copies it into tail. The reader
// is always consumed to EOF so the writer never blocks.
func drain(rd io.Reader, prefix string, log *logger.Logger, tail *tailBuffer) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineLength)
	sc.Split(scanLines)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		log.Line(prefix, line)
		tail.WriteLine(line)
	}

	err := sc.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, rd)
	}
	return err
}

// scanLines splits on \n, \r\n and bare \r. ffmpeg rewrites its progress
// line with \r.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		adv := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			adv++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Might be the first half of \r\n.
			return 0, nil, nil
		}
		return adv, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last max bytes of output lines.
type tailBuffer struct {
	mu        sync.Mutex
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.truncated {
		return "...\n" + string(t.buf)
	}
	return string(t.buf)
}
