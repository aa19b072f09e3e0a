// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunState is the position of a pipeline run in its state machine. The
// non-terminal states double as stage names.
type RunState string

const (
	StateDownloading RunState = "downloading"
	StateClassifying RunState = "classifying"
	StateConverting  RunState = "converting"
	StateExtracting  RunState = "extracting_metadata"
	StatePersisting  RunState = "persisting"
	StatePublishing  RunState = "publishing"
	StateDone        RunState = "done"
	StateFailed      RunState = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageResult records one stage of one run for replay and debugging.
type StageResult struct {
	Stage     RunState       `json:"stage" yaml:"stage"`
	Status    StageStatus    `json:"status" yaml:"status"`
	Attempts  int            `json:"attempts" yaml:"attempts"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	Duration  time.Duration  `json:"duration" yaml:"duration"`
	Output    map[string]any `json:"output,omitempty" yaml:"output,omitempty"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// PublishResult is the dataset service's upload confirmation.
type PublishResult struct {
	Code       int            `json:"code" yaml:"code"`
	StatusText string         `json:"statusText,omitempty" yaml:"status_text,omitempty"`
	Message    string         `json:"message,omitempty" yaml:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// RunResult is the composite outcome of one pipeline run.
type RunResult struct {
	RunID   string   `json:"run_id" yaml:"run_id"`
	RunName string   `json:"run_name" yaml:"run_name"`
	URL     string   `json:"url" yaml:"url"`
	State   RunState `json:"state" yaml:"state"`

	Domain   DomainTag       `json:"domain,omitempty" yaml:"domain,omitempty"`
	Source   *SourceObject   `json:"source,omitempty" yaml:"source,omitempty"`
	Document *ParsedDocument `json:"document,omitempty" yaml:"document,omitempty"`
	Metadata *PaperMetadata  `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Record is the persistence outcome. It stays set when a later stage fails.
	Record *PaperRecord `json:"record,omitempty" yaml:"record,omitempty"`

	// Publish is the dataset outcome; PublishError is set instead when
	// publishing exhausted its retries.
	Publish      *PublishResult `json:"publish,omitempty" yaml:"publish,omitempty"`
	PublishError string         `json:"publish_error,omitempty" yaml:"publish_error,omitempty"`

	FailedStage RunState `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`

	Stages     []StageResult `json:"stages" yaml:"stages"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Succeeded reports whether every stage completed.
func (r *RunResult) Succeeded() bool {
	return r.State == StateDone
}

// Persisted reports whether the paper record was committed, regardless of
// what happened afterwards.
func (r *RunResult) Persisted() bool {
	return r.Record != nil
}
