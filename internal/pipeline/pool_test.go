// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperflow/pkg/types"
)

// blockingRunner tracks concurrency and blocks each run until released.
type blockingRunner struct {
	release chan struct{}
	started chan string

	mu       sync.Mutex
	running  int
	maxSeen  int
	failURLs map[string]bool
	calls    int32
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), started: make(chan string, 100)}
}

func (b *blockingRunner) Run(ctx context.Context, u string) (*types.RunResult, error) {
	atomic.AddInt32(&b.calls, 1)
	b.mu.Lock()
	b.running++
	if b.running > b.maxSeen {
		b.maxSeen = b.running
	}
	b.mu.Unlock()
	b.started <- u

	select {
	case <-b.release:
	case <-ctx.Done():
	}

	b.mu.Lock()
	b.running--
	b.mu.Unlock()

	res := &types.RunResult{URL: u, RunName: RunName(u), State: types.StateDone}
	if b.failURLs[u] {
		res.State = types.StateFailed
		return res, errors.New("failed")
	}
	return res, nil
}

// instantRunner completes immediately.
type instantRunner struct {
	outcomes map[string]*types.RunResult
}

func (r instantRunner) Run(_ context.Context, u string) (*types.RunResult, error) {
	if res, ok := r.outcomes[u]; ok {
		return res, nil
	}
	return &types.RunResult{URL: u, State: types.StateDone}, nil
}

func TestRunBatch_OrderAndLimit(t *testing.T) {
	b := newBlockingRunner()
	urls := []string{"https://h/a.pdf", "https://h/b.pdf", "https://h/c.pdf", "https://h/d.pdf", "https://h/e.pdf"}

	done := make(chan []*types.RunResult)
	go func() { done <- RunBatch(context.Background(), b, urls, 2) }()

	// Release runs one at a time once two are in flight.
	for range urls {
		<-b.started
		b.release <- struct{}{}
	}
	results := <-done

	require.Len(t, results, len(urls))
	for i, u := range urls {
		assert.Equal(t, u, results[i].URL)
	}
	assert.LessOrEqual(t, b.maxSeen, 2)
	assert.Equal(t, int32(len(urls)), atomic.LoadInt32(&b.calls))
}

func TestRunBatch_NilResultBecomesFailed(t *testing.T) {
	r := runnerFunc(func(context.Context, string) (*types.RunResult, error) {
		return nil, errors.New("boom")
	})
	results := RunBatch(context.Background(), r, []string{"https://h/x.pdf"}, 0)
	require.Len(t, results, 1)
	assert.Equal(t, types.StateFailed, results[0].State)
	assert.Equal(t, "boom", results[0].Error)
	assert.Equal(t, "process-https://h/x.pdf", results[0].RunName)
}

type runnerFunc func(context.Context, string) (*types.RunResult, error)

func (f runnerFunc) Run(ctx context.Context, u string) (*types.RunResult, error) { return f(ctx, u) }

func TestSummarize(t *testing.T) {
	results := RunBatch(context.Background(), instantRunner{outcomes: map[string]*types.RunResult{
		"p": {State: types.StateFailed, Record: &types.PaperRecord{ID: 1}},
		"f": {State: types.StateFailed},
	}}, []string{"ok1", "p", "f", "ok2"}, 4)

	s := Summarize(results)
	assert.Equal(t, BatchSummary{Succeeded: 2, Partial: 1, Failed: 1}, s)
	assert.Equal(t, 4, s.Total())
	assert.True(t, s.HasFailures())

	var buf bytes.Buffer
	WriteSummary(&buf, s)
	assert.Contains(t, buf.String(), "Batch summary: 2 succeeded, 1 persisted without publish, 1 failed (total: 4)")
}

func TestPool_RefusesWhenFull(t *testing.T) {
	b := newBlockingRunner()
	var finished int32
	p := NewPool(context.Background(), b, 2, WithResultHook(func(*types.RunResult, error) {
		atomic.AddInt32(&finished, 1)
	}))

	require.NoError(t, p.Submit("https://h/a.pdf"))
	require.NoError(t, p.Submit("https://h/a.pdf"))
	<-b.started
	<-b.started

	assert.ErrorIs(t, p.Submit("https://h/c.pdf"), ErrPoolFull)
	assert.Equal(t, []string{"https://h/a.pdf", "https://h/a.pdf"}, p.InFlight())

	close(b.release)
	p.Wait()

	assert.Empty(t, p.InFlight())
	assert.Equal(t, int32(2), atomic.LoadInt32(&finished))
	assert.ErrorIs(t, p.Submit("https://h/d.pdf"), ErrPoolClosed)
}

func TestPool_AcceptsAgainAfterCompletion(t *testing.T) {
	b := newBlockingRunner()
	p := NewPool(context.Background(), b, 1)

	require.NoError(t, p.Submit("https://h/a.pdf"))
	<-b.started
	assert.ErrorIs(t, p.Submit("https://h/b.pdf"), ErrPoolFull)

	b.release <- struct{}{}
	assert.Eventually(t, func() bool { return len(p.InFlight()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return p.Submit("https://h/b.pdf") == nil }, time.Second, 5*time.Millisecond)

	<-b.started
	b.release <- struct{}{}
	p.Wait()
}

func TestPool_CancelledContextStopsRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := newBlockingRunner()
	p := NewPool(ctx, b, 3)

	require.NoError(t, p.Submit("https://h/a.pdf"))
	<-b.started
	cancel()
	p.Wait()
	assert.Empty(t, p.InFlight())
}
