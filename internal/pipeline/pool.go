// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paperflow/pkg/types"
)

var (
	// ErrPoolFull is returned by Submit when every worker is busy. Callers
	// should ask the producer to retry later.
	ErrPoolFull = errors.New("worker pool full")

	// ErrPoolClosed is returned by Submit after Wait has been called.
	ErrPoolClosed = errors.New("worker pool closed")
)

// submission is one accepted URL. Pointers keep duplicate URLs distinct in
// the in-flight set.
type submission struct {
	url      string
	accepted time.Time
}

// Pool runs submitted URLs in the background with bounded concurrency. It
// never queues: a submission is either started now or refused.
type Pool struct {
	ctx      context.Context
	runner   Runner
	log      *logrus.Entry
	onResult func(*types.RunResult, error)

	g        errgroup.Group
	inflight mapset.Set[*submission]

	mu     sync.Mutex
	closed bool
}

// PoolOption customises a Pool.
type PoolOption func(*Pool)

// WithResultHook calls fn after every run finishes.
func WithResultHook(fn func(*types.RunResult, error)) PoolOption {
	return func(p *Pool) { p.onResult = fn }
}

// WithPoolLogger sets the pool's log entry.
func WithPoolLogger(l *logrus.Entry) PoolOption {
	return func(p *Pool) { p.log = l }
}

// NewPool creates a pool running at most limit runs at once. Runs use ctx,
// so cancelling it aborts them.
func NewPool(ctx context.Context, r Runner, limit int, opts ...PoolOption) *Pool {
	if limit < 1 {
		limit = 1
	}
	p := &Pool{
		ctx:      ctx,
		runner:   r,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		inflight: mapset.NewSet[*submission](),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.g.SetLimit(limit)
	return p
}

// Submit starts a run for rawURL if a worker is free.
func (p *Pool) Submit(rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	s := &submission{url: rawURL, accepted: time.Now()}
	p.inflight.Add(s)
	ok := p.g.TryGo(func() error {
		defer p.inflight.Remove(s)
		res, err := p.runner.Run(p.ctx, rawURL)
		if res == nil {
			res = failedResult(rawURL, err)
		}
		p.log.WithFields(logrus.Fields{
			"run_name": res.RunName,
			"state":    res.State,
			"elapsed":  time.Since(s.accepted).Round(time.Millisecond),
		}).Info("background run finished")
		if p.onResult != nil {
			p.onResult(res, err)
		}
		return nil
	})
	if !ok {
		p.inflight.Remove(s)
		return ErrPoolFull
	}
	return nil
}

// InFlight returns the URLs currently being processed, sorted.
func (p *Pool) InFlight() []string {
	subs := p.inflight.ToSlice()
	urls := make([]string, 0, len(subs))
	for _, s := range subs {
		urls = append(urls, s.url)
	}
	sort.Strings(urls)
	return urls
}

// Wait refuses new submissions and blocks until running ones finish.
func (p *Pool) Wait() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	_ = p.g.Wait()
}
