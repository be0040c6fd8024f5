package processor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"thumbnailer/internal/pkg/errors"
	"thumbnailer/internal/pkg/logger"
)

const acquireAttempts = 3

// Workspace is a job-private scratch directory.
type Workspace struct {
	Path string
}

// Name is the directory name, <prefix>-<8 hex chars>.
func (w *Workspace) Name() string {
	return filepath.Base(w.Path)
}

type WorkspaceManager struct {
	root   string
	prefix string
	log    *logger.Logger
}

func NewWorkspaceManager(root, prefix string, log *logger.Logger) *WorkspaceManager {
	if root == "" {
		root = os.TempDir()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &WorkspaceManager{root: root, prefix: prefix, log: log.WithComponent("workspace")}
}

// Acquire creates a fresh workspace directory under the temp root.
func (m *WorkspaceManager) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, errors.Wrap(err, "workspace.acquire", "failed to create temp root")
	}

	var lastErr error
	for i := 0; i < acquireAttempts; i++ {
		path := filepath.Join(m.root, fmt.Sprintf("%s-%s", m.prefix, uuid.NewString()[:8]))

		err := os.Mkdir(path, 0o755)
		if err == nil {
			return &Workspace{Path: path}, nil
		}
		lastErr = err
		if !os.IsExist(err) {
			break
		}
	}

	return nil, errors.Wrap(lastErr, "workspace.acquire", "failed to create workspace")
}

// Release removes the workspace and everything in it. Safe to call on a
// nil, already-removed or never-created workspace. Failures are logged
// and returned, never raised.
func (m *WorkspaceManager) Release(ws *Workspace) error {
	if ws == nil || ws.Path == "" {
		return nil
	}

	if err := os.RemoveAll(ws.Path); err != nil {
		e := errors.WrapWithCode(err, errors.CodeCleanupFailure, "workspace.release", "failed to remove workspace").
			WithField("path", ws.Path)
		m.log.Warn("workspace cleanup failed", "path", ws.Path, "code", string(e.Code), "error", err.Error())
		return e
	}

	m.log.Debug("workspace released", "path", ws.Path)
	return nil
}
