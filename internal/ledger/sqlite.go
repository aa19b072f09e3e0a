// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperflow/pkg/types"
)

// SQLite is a ledger stored in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the ledger database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			run_name TEXT NOT NULL,
			url TEXT NOT NULL,
			state TEXT NOT NULL,
			domain TEXT,
			failed_stage TEXT,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			result TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_run_name ON runs(run_name)`,
		`CREATE TABLE IF NOT EXISTS stage_results (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			output TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stage_results_run_id ON stage_results(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// StartRun inserts the run row.
func (s *SQLite) StartRun(ctx context.Context, r *types.RunResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, run_name, url, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.RunID, r.RunName, r.URL, string(r.State), formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.RunID, err)
	}
	return nil
}

// RecordStage appends one stage result and moves the run's state along.
func (s *SQLite) RecordStage(ctx context.Context, runID string, sr types.StageResult) error {
	var output []byte
	if len(sr.Output) > 0 {
		var err error
		if output, err = json.Marshal(sr.Output); err != nil {
			return fmt.Errorf("marshaling stage output: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stage_results (run_id, stage, status, attempts, started_at, duration_ns, output, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(sr.Stage), string(sr.Status), sr.Attempts, formatTime(sr.StartedAt),
		int64(sr.Duration), nullString(string(output)), nullString(sr.Error)); err != nil {
		return fmt.Errorf("inserting stage result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET state = ? WHERE run_id = ?`, string(sr.Stage), runID); err != nil {
		return fmt.Errorf("updating run state: %w", err)
	}
	return tx.Commit()
}

// FinishRun stores the final state and the complete result as YAML. The
// run row is created if StartRun never reached the database.
func (s *SQLite) FinishRun(ctx context.Context, r *types.RunResult) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, run_name, url, state, domain, failed_stage, error, started_at, finished_at, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			state = excluded.state,
			domain = excluded.domain,
			failed_stage = excluded.failed_stage,
			error = excluded.error,
			finished_at = excluded.finished_at,
			result = excluded.result`,
		r.RunID, r.RunName, r.URL, string(r.State), nullString(string(r.Domain)),
		nullString(string(r.FailedStage)), nullString(r.Error), formatTime(r.StartedAt),
		formatTime(r.FinishedAt), string(data))
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", r.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	q := `SELECT run_id, run_name, url, state, domain, failed_stage, started_at, finished_at
	      FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			sum                   RunSummary
			state                 string
			domain, failed, endAt sql.NullString
			startAt               string
		)
		if err := rows.Scan(&sum.RunID, &sum.RunName, &sum.URL, &state, &domain, &failed, &startAt, &endAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		sum.State = types.RunState(state)
		sum.Domain = types.DomainTag(domain.String)
		sum.FailedStage = types.RunState(failed.String)
		sum.StartedAt = parseTime(startAt)
		sum.FinishedAt = parseTime(endAt.String)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetRun returns the stored result of a finished run, or the recorded
// stages of one still in progress.
func (s *SQLite) GetRun(ctx context.Context, runID string) (*types.RunResult, error) {
	var (
		r       types.RunResult
		state   string
		startAt string
		result  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, run_name, url, state, started_at, result FROM runs WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.RunName, &r.URL, &state, &startAt, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}

	if result.Valid && result.String != "" {
		var full types.RunResult
		if err := yaml.Unmarshal([]byte(result.String), &full); err != nil {
			return nil, fmt.Errorf("decoding run %s: %w", runID, err)
		}
		return &full, nil
	}

	r.State = types.RunState(state)
	r.StartedAt = parseTime(startAt)
	stages, err := s.stages(ctx, runID)
	if err != nil {
		return nil, err
	}
	r.Stages = stages
	return &r, nil
}

func (s *SQLite) stages(ctx context.Context, runID string) ([]types.StageResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, status, attempts, started_at, duration_ns, output, error
		 FROM stage_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	defer rows.Close()

	var out []types.StageResult
	for rows.Next() {
		var (
			sr                 types.StageResult
			stage, status, at  string
			durationNS         int64
			output, stageError sql.NullString
		)
		if err := rows.Scan(&stage, &status, &sr.Attempts, &at, &durationNS, &output, &stageError); err != nil {
			return nil, fmt.Errorf("scanning stage: %w", err)
		}
		sr.Stage = types.RunState(stage)
		sr.Status = types.StageStatus(status)
		sr.StartedAt = parseTime(at)
		sr.Duration = time.Duration(durationNS)
		sr.Error = stageError.String
		if output.Valid && output.String != "" {
			if err := json.Unmarshal([]byte(output.String), &sr.Output); err != nil {
				return nil, fmt.Errorf("decoding stage output: %w", err)
			}
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
