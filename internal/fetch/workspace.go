// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WorkspacePrefix names every per-run scratch directory so orphaned ones can
// be found and swept.
const WorkspacePrefix = "paper-run-"

// Workspace is a scratch directory owned by exactly one pipeline run.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a fresh scratch directory under baseDir. An empty
// baseDir uses the system temp directory.
func NewWorkspace(baseDir string) (*Workspace, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating scratch base %s: %w", baseDir, err)
		}
	}
	dir, err := os.MkdirTemp(baseDir, WorkspacePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Close removes the workspace and everything in it. It is safe to call more
// than once; later calls return the first result.
func (w *Workspace) Close() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}
