// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records pipeline runs and their stage results so runs can
// be inspected and replayed after the fact. Two backends exist: a local
// SQLite file and Redis for deployments with several workers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/paperflow/pkg/types"
)

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of a run listing.
type RunSummary struct {
	RunID       string
	RunName     string
	URL         string
	State       types.RunState
	Domain      types.DomainTag
	FailedStage types.RunState
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Ledger stores runs. Its first three methods match the pipeline's recorder
// hooks.
type Ledger interface {
	StartRun(ctx context.Context, r *types.RunResult) error
	RecordStage(ctx context.Context, runID string, s types.StageResult) error
	FinishRun(ctx context.Context, r *types.RunResult) error

	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// GetRun returns the full result of a run. Runs still in progress are
	// assembled from the stages recorded so far.
	GetRun(ctx context.Context, runID string) (*types.RunResult, error)

	Close() error
}

// Open returns the ledger selected by cfg.
func Open(cfg types.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case types.LedgerNone, "":
		return Nop{}, nil
	case types.LedgerSQLite:
		return OpenSQLite(cfg.Path)
	case types.LedgerRedis:
		return OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) StartRun(context.Context, *types.RunResult) error { return nil }
func (Nop) RecordStage(context.Context, string, types.StageResult) error { return nil }
func (Nop) FinishRun(context.Context, *types.RunResult) error { return nil }
func (Nop) ListRuns(context.Context, int) ([]RunSummary, error) { return nil, nil }
func (Nop) GetRun(_ context.Context, id string) (*types.RunResult, error) {
	return nil, fmt.Errorf("%w: %s (ledger disabled)", ErrRunNotFound, id)
}
func (Nop) Close() error { return nil }
