package model

import "time"

// RunStatus tracks a pipeline run through its stages.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusScraping    RunStatus = "scraping"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusDigesting   RunStatus = "digesting"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// StageStatus tracks an individual pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// Run is one invocation of the pipeline.
type Run struct {
	ID        string     `json:"id"`
	Sources   []Source   `json:"sources"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult summarizes a completed run.
type RunResult struct {
	ItemsScraped    int           `json:"items_scraped"`
	ItemsAggregated int           `json:"items_aggregated"`
	NewsCount       int           `json:"news_count"`
	ChatterCount    int           `json:"chatter_count"`
	FailSafeCount   int           `json:"failsafe_count"`
	SkippedRecords  int           `json:"skipped_records"`
	DigestPath      string        `json:"digest_path,omitempty"`
	Stages          []StageResult `json:"stages,omitempty"`
}

// RunStage is the persisted record of a stage start.
type RunStage struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
}

// StageResult is the outcome of one pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Error    string         `json:"error,omitempty"`
	Duration int64          `json:"duration_ms"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
