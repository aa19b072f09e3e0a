// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paperflow/pkg/types"
)

// Runner processes one URL. *Pipeline is the production Runner.
type Runner interface {
	Run(ctx context.Context, rawURL string) (*types.RunResult, error)
}

// RunBatch runs every URL with at most limit runs in flight and returns the
// results in input order. Runs are independent: one failing does not stop
// the others.
func RunBatch(ctx context.Context, r Runner, urls []string, limit int) []*types.RunResult {
	if limit < 1 {
		limit = 1
	}
	results := make([]*types.RunResult, len(urls))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			res, err := r.Run(ctx, u)
			if res == nil {
				res = failedResult(u, err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func failedResult(rawURL string, err error) *types.RunResult {
	now := time.Now().UTC()
	res := &types.RunResult{
		RunName:    RunName(rawURL),
		URL:        rawURL,
		State:      types.StateFailed,
		StartedAt:  now,
		FinishedAt: now,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// BatchSummary counts the outcomes of a batch.
type BatchSummary struct {
	Succeeded int
	// Partial runs persisted their record but failed to publish it.
	Partial int
	Failed  int
}

// Total returns the number of runs.
func (s BatchSummary) Total() int {
	return s.Succeeded + s.Partial + s.Failed
}

// HasFailures reports whether any run did not complete.
func (s BatchSummary) HasFailures() bool {
	return s.Partial > 0 || s.Failed > 0
}

// Summarize counts results.
func Summarize(results []*types.RunResult) BatchSummary {
	var s BatchSummary
	for _, r := range results {
		switch {
		case r.Succeeded():
			s.Succeeded++
		case r.Persisted():
			s.Partial++
		default:
			s.Failed++
		}
	}
	return s
}

// WriteSummary prints the batch summary line.
func WriteSummary(w io.Writer, s BatchSummary) {
	fmt.Fprintf(w, "\nBatch summary: %d succeeded, %d persisted without publish, %d failed (total: %d)\n",
		s.Succeeded, s.Partial, s.Failed, s.Total())
}
