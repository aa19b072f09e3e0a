// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives one source URL through download, classification,
// conversion, metadata extraction, persistence and dataset publishing.
// Stages run strictly in order; the first failure ends the run. Publishing
// happens after the record is committed, so a publish failure leaves a
// persisted record behind and is reported as a partial success.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/paperflow/internal/classify"
	"github.com/pdiddy/paperflow/internal/convert"
	"github.com/pdiddy/paperflow/internal/extract"
	"github.com/pdiddy/paperflow/internal/fetch"
	"github.com/pdiddy/paperflow/internal/httputil"
	"github.com/pdiddy/paperflow/internal/persist"
	"github.com/pdiddy/paperflow/internal/publish"
	"github.com/pdiddy/paperflow/pkg/types"
)

// Fetcher downloads a source URL into a workspace.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, ws *fetch.Workspace) (*types.SourceObject, error)
}

// Converter produces Markdown for a downloaded source.
type Converter interface {
	Convert(ctx context.Context, src *types.SourceObject, ws *fetch.Workspace) (*types.ParsedDocument, error)
}

// Saver persists a finished paper.
type Saver interface {
	Save(ctx context.Context, sr persist.SaveRequest) (*types.PaperRecord, error)
}

// Recorder receives run and stage results as they happen. Errors from a
// Recorder are logged and never fail a run.
type Recorder interface {
	StartRun(ctx context.Context, r *types.RunResult) error
	RecordStage(ctx context.Context, runID string, s types.StageResult) error
	FinishRun(ctx context.Context, r *types.RunResult) error
}

// Pipeline runs source URLs end to end. It is safe for concurrent use;
// each Run owns its own workspace and result.
type Pipeline struct {
	scratchDir    string
	fetcher       Fetcher
	converter     Converter
	extractor     extract.MetadataExtractor
	saver         Saver
	publisher     publish.Publisher
	recorder      Recorder
	log           *logrus.Entry
	extractPolicy httputil.Policy
	publishPolicy httputil.Policy
}

// Option customises a Pipeline. Options replace the collaborators New
// builds from configuration.
type Option func(*Pipeline)

// WithFetcher replaces the downloader.
func WithFetcher(f Fetcher) Option { return func(p *Pipeline) { p.fetcher = f } }

// WithConverter replaces the format converter.
func WithConverter(c Converter) Option { return func(p *Pipeline) { p.converter = c } }

// WithParser keeps the extension dispatch but replaces the PDF parser.
func WithParser(pr convert.Parser) Option {
	return func(p *Pipeline) { p.converter = convert.New(pr) }
}

// WithExtractor replaces the metadata agent.
func WithExtractor(e extract.MetadataExtractor) Option { return func(p *Pipeline) { p.extractor = e } }

// WithSaver replaces the storage client.
func WithSaver(s Saver) Option { return func(p *Pipeline) { p.saver = s } }

// WithPublisher replaces the dataset client.
func WithPublisher(pub publish.Publisher) Option { return func(p *Pipeline) { p.publisher = pub } }

// WithRecorder sets where stage results are recorded.
func WithRecorder(r Recorder) Option { return func(p *Pipeline) { p.recorder = r } }

// WithLogger sets the base log entry.
func WithLogger(l *logrus.Entry) Option { return func(p *Pipeline) { p.log = l } }

// WithExtractPolicy overrides the extraction retry policy.
func WithExtractPolicy(pol httputil.Policy) Option {
	return func(p *Pipeline) { p.extractPolicy = pol }
}

// WithPublishPolicy overrides the publish retry policy.
func WithPublishPolicy(pol httputil.Policy) Option {
	return func(p *Pipeline) { p.publishPolicy = pol }
}

// New builds a Pipeline whose collaborators talk to the services named in
// cfg. Options override individual collaborators.
func New(cfg *types.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: nil config")
	}

	f, err := fetch.New(cfg.Fetch)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		scratchDir:    cfg.Runner.ScratchDir,
		fetcher:       f,
		converter:     convert.New(convert.NewHTTPParser(cfg.Parser)),
		extractor:     extract.NewAgentClient(cfg.Extraction),
		saver:         persist.New(cfg.Storage),
		publisher:     publish.NewDatasetClient(cfg.Dataset),
		recorder:      nopRecorder{},
		log:           logrus.NewEntry(logrus.StandardLogger()),
		extractPolicy: httputil.PolicyFrom(cfg.Extraction.RetryConfig),
		publishPolicy: httputil.PolicyFrom(cfg.Dataset.RetryConfig),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunName is the deterministic name of the run for rawURL.
func RunName(rawURL string) string {
	return "process-" + rawURL
}

// Run processes rawURL. The returned result is never nil. On failure the
// error is a *StageError and the result names the failed stage; a publish
// failure still leaves result.Record set.
func (p *Pipeline) Run(ctx context.Context, rawURL string) (*types.RunResult, error) {
	r := &run{
		p: p,
		res: &types.RunResult{
			RunID:     uuid.NewString(),
			RunName:   RunName(rawURL),
			URL:       rawURL,
			State:     types.StateDownloading,
			StartedAt: time.Now().UTC(),
		},
	}
	r.log = p.log.WithFields(logrus.Fields{"run_id": r.res.RunID, "run_name": r.res.RunName})
	r.log.Info("run started")
	if err := p.recorder.StartRun(ctx, r.res); err != nil {
		r.log.WithError(err).Warn("recording run start")
	}

	err := r.execute(ctx)
	r.finish(ctx, err)
	return r.res, err
}

// run carries the state of one Run call.
type run struct {
	p   *Pipeline
	res *types.RunResult
	log *logrus.Entry
}

func (r *run) execute(ctx context.Context) error {
	res := r.res

	ws, err := fetch.NewWorkspace(r.p.scratchDir)
	if err != nil {
		return &StageError{Stage: types.StateDownloading, Err: fmt.Errorf("%w: %w", fetch.ErrFetch, err)}
	}
	defer func() {
		if err := ws.Close(); err != nil {
			r.log.WithError(err).Warn("removing workspace")
		}
	}()

	if err := r.stage(ctx, types.StateDownloading, func(ctx context.Context) (int, map[string]any, error) {
		src, err := r.p.fetcher.Fetch(ctx, res.URL, ws)
		if err != nil {
			return 1, nil, err
		}
		res.Source = src
		return 1, map[string]any{"filename": src.Filename, "size": src.Size, "md5": src.MD5}, nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, types.StateClassifying, func(context.Context) (int, map[string]any, error) {
		res.Domain = classify.Domain(res.URL)
		return 1, map[string]any{"domain": string(res.Domain)}, nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, types.StateConverting, func(ctx context.Context) (int, map[string]any, error) {
		doc, err := r.p.converter.Convert(ctx, res.Source, ws)
		if err != nil {
			return 1, nil, err
		}
		res.Document = doc
		out := map[string]any{"markdown_path": doc.Path, "markdown_bytes": len(doc.Text)}
		if doc.Engine != "" {
			out["engine"] = doc.Engine
		}
		if doc.Parser.Service != "" {
			out["service"] = doc.Parser.Service
		}
		return 1, out, nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, types.StateExtracting, func(ctx context.Context) (int, map[string]any, error) {
		meta, attempts, err := extract.Extract(ctx, r.p.extractor, res.Document.Text, r.p.extractPolicy)
		if err != nil {
			return attempts, nil, err
		}
		res.Metadata = &meta
		return attempts, map[string]any{"title": meta.Title, "year": meta.Year}, nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, types.StatePersisting, func(ctx context.Context) (int, map[string]any, error) {
		rec, err := r.p.saver.Save(ctx, persist.SaveRequest{
			OriginPath:   res.Source.Path,
			MarkdownPath: res.Document.Path,
			Metadata:     *res.Metadata,
			Domain:       res.Domain,
			SourceURL:    res.URL,
			Parser:       res.Document.Parser,
		})
		if err != nil {
			return 1, nil, err
		}
		res.Record = rec
		return 1, map[string]any{"record_id": rec.ID, "origin_filemd5": rec.OriginFileMD5}, nil
	}); err != nil {
		return err
	}

	return r.stage(ctx, types.StatePublishing, func(ctx context.Context) (int, map[string]any, error) {
		pr, attempts, err := publish.Publish(ctx, r.p.publisher, res.Document.Path, r.p.publishPolicy)
		if err != nil {
			res.PublishError = err.Error()
			return attempts, nil, err
		}
		res.Publish = pr
		return attempts, map[string]any{"code": pr.Code}, nil
	})
}

// stageFunc runs one stage and reports attempts and a small output summary.
type stageFunc func(ctx context.Context) (attempts int, output map[string]any, err error)

func (r *run) stage(ctx context.Context, state types.RunState, fn stageFunc) error {
	r.res.State = state
	log := r.log.WithField("stage", string(state))
	start := time.Now()

	attempts, output, err := fn(ctx)

	sr := types.StageResult{
		Stage:     state,
		Status:    types.StageSucceeded,
		Attempts:  attempts,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
		Output:    output,
	}
	if err != nil {
		sr.Status = types.StageFailed
		sr.Error = err.Error()
	}
	r.res.Stages = append(r.res.Stages, sr)

	entry := log.WithFields(logrus.Fields{"attempts": attempts, "duration": sr.Duration.Round(time.Millisecond)})
	if err != nil {
		entry.WithError(err).Error("stage failed")
	} else {
		entry.Info("stage succeeded")
	}
	if rerr := r.p.recorder.RecordStage(context.WithoutCancel(ctx), r.res.RunID, sr); rerr != nil {
		log.WithError(rerr).Warn("recording stage result")
	}

	if err != nil {
		return &StageError{Stage: state, Err: err}
	}
	return nil
}

func (r *run) finish(ctx context.Context, err error) {
	res := r.res
	res.FinishedAt = time.Now().UTC()

	if err == nil {
		res.State = types.StateDone
		r.log.WithField("domain", res.Domain).Info("run completed")
	} else {
		var se *StageError
		if errors.As(err, &se) {
			res.FailedStage = se.Stage
		}
		res.State = types.StateFailed
		res.Error = err.Error()
		entry := r.log.WithField("failed_stage", res.FailedStage)
		if res.Persisted() {
			entry.WithError(err).Warn("run persisted but not published")
		} else {
			entry.WithError(err).Error("run failed")
		}
	}

	// The run's own context may already be cancelled; the ledger entry is
	// still worth writing.
	if rerr := r.p.recorder.FinishRun(context.WithoutCancel(ctx), res); rerr != nil {
		r.log.WithError(rerr).Warn("recording run result")
	}
}

type nopRecorder struct{}

func (nopRecorder) StartRun(context.Context, *types.RunResult) error { return nil }
func (nopRecorder) RecordStage(context.Context, string, types.StageResult) error { return nil }
func (nopRecorder) FinishRun(context.Context, *types.RunResult) error { return nil }
