// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/paperflow/internal/fetch"
)

const (
	defaultSweepSchedule = "@every 1h"
	defaultSweepMaxAge   = 24 * time.Hour
)

// ScratchSweeper removes run workspaces left behind by processes that died
// before cleaning up.
type ScratchSweeper struct {
	dir      string
	maxAge   time.Duration
	schedule string
	now      func() time.Time
	log      *logrus.Entry
}

// NewScratchSweeper sweeps dir (the system temp directory when empty) for
// workspaces older than maxAge.
func NewScratchSweeper(dir string, maxAge time.Duration, log *logrus.Entry) *ScratchSweeper {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxAge <= 0 {
		maxAge = defaultSweepMaxAge
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ScratchSweeper{
		dir:      dir,
		maxAge:   maxAge,
		schedule: defaultSweepSchedule,
		now:      time.Now,
		log:      log,
	}
}

func (s *ScratchSweeper) Name() string     { return "scratch-sweeper" }
func (s *ScratchSweeper) Schedule() string { return s.schedule }

// Run implements CronJob.
func (s *ScratchSweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep removes stale workspaces and returns how many it removed. A
// workspace is stale when its modification time is older than maxAge.
func (s *ScratchSweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading scratch dir %s: %w", s.dir, err)
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.IsDir() || !strings.HasPrefix(e.Name(), fetch.WorkspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("removing stale workspace")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.WithFields(logrus.Fields{"dir": s.dir, "removed": removed}).Info("swept stale workspaces")
	}
	return removed, nil
}
