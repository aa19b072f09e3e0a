// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperflow/pkg/types"
)

const runIndexKey = "paperflow:runs"

func runKey(id string) string {
	return "paperflow:run:" + id
}

func stagesKey(id string) string {
	return "paperflow:run:" + id + ":stages"
}

// Redis is a ledger shared by every worker pointing at the same server.
// Each run is a hash, its stages a list, and a sorted set indexes runs by
// start time.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to addr and checks the connection.
func OpenRedis(addr string, db int) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Protocol: 2,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// StartRun writes the run hash and indexes it.
func (r *Redis) StartRun(ctx context.Context, res *types.RunResult) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, runKey(res.RunID), map[string]any{
			"run_id":     res.RunID,
			"run_name":   res.RunName,
			"url":        res.URL,
			"state":      string(res.State),
			"started_at": formatTime(res.StartedAt),
		})
		p.ZAdd(ctx, runIndexKey, redis.Z{Score: float64(res.StartedAt.UnixNano()), Member: res.RunID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording run %s: %w", res.RunID, err)
	}
	return nil
}

// RecordStage appends the stage result to the run's list.
func (r *Redis) RecordStage(ctx context.Context, runID string, sr types.StageResult) error {
	data, err := json.Marshal(sr)
	if err != nil {
		return fmt.Errorf("marshaling stage result: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, stagesKey(runID), data)
		p.HSet(ctx, runKey(runID), "state", string(sr.Stage))
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording stage for %s: %w", runID, err)
	}
	return nil
}

// FinishRun stores the final state and the complete result as YAML.
func (r *Redis) FinishRun(ctx context.Context, res *types.RunResult) error {
	data, err := yaml.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling run result: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, runKey(res.RunID), map[string]any{
			"run_id":       res.RunID,
			"run_name":     res.RunName,
			"url":          res.URL,
			"started_at":   formatTime(res.StartedAt),
			"state":        string(res.State),
			"domain":       string(res.Domain),
			"failed_stage": string(res.FailedStage),
			"error":        res.Error,
			"finished_at":  formatTime(res.FinishedAt),
			"result":       string(data),
		})
		p.ZAdd(ctx, runIndexKey, redis.Z{Score: float64(res.StartedAt.UnixNano()), Member: res.RunID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", res.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (r *Redis) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, runIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, runKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading runs: %w", err)
	}

	out := make([]RunSummary, 0, len(ids))
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		out = append(out, RunSummary{
			RunID:       h["run_id"],
			RunName:     h["run_name"],
			URL:         h["url"],
			State:       types.RunState(h["state"]),
			Domain:      types.DomainTag(h["domain"]),
			FailedStage: types.RunState(h["failed_stage"]),
			StartedAt:   parseTime(h["started_at"]),
			FinishedAt:  parseTime(h["finished_at"]),
		})
	}
	return out, nil
}

// GetRun returns the stored result of a finished run, or the recorded
// stages of one still in progress.
func (r *Redis) GetRun(ctx context.Context, runID string) (*types.RunResult, error) {
	h, err := r.client.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if res := h["result"]; res != "" {
		var full types.RunResult
		if err := yaml.Unmarshal([]byte(res), &full); err != nil {
			return nil, fmt.Errorf("decoding run %s: %w", runID, err)
		}
		return &full, nil
	}

	raw, err := r.client.LRange(ctx, stagesKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing stages for %s: %w", runID, err)
	}
	res := &types.RunResult{
		RunID:     h["run_id"],
		RunName:   h["run_name"],
		URL:       h["url"],
		State:     types.RunState(h["state"]),
		StartedAt: parseTime(h["started_at"]),
	}
	for _, s := range raw {
		var sr types.StageResult
		if err := json.Unmarshal([]byte(s), &sr); err != nil {
			return nil, fmt.Errorf("decoding stage: %w", err)
		}
		res.Stages = append(res.Stages, sr)
	}
	return res, nil
}
