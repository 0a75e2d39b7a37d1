package model

import "time"

// RunStatus tracks a pipeline run through the controller's state machine.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusAwaiting    RunStatus = "awaiting_clarification"
	RunStatusRetrieving  RunStatus = "retrieving"
	RunStatusFetching    RunStatus = "fetching"
	RunStatusAnalyzing   RunStatus = "analyzing"
	RunStatusFormatting  RunStatus = "formatting"
	RunStatusReporting   RunStatus = "reporting"
	RunStatusValidating  RunStatus = "validating"
	RunStatusDone        RunStatus = "done"
	RunStatusFailed      RunStatus = "failed"
)

// StageStatus is the recorded outcome of one stage execution.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusDegraded StageStatus = "degraded"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// TokenUsage tracks intelligence-call token consumption across stages.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates usage from another stage.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// StageRecord captures telemetry for one executed stage.
type StageRecord struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Duration   int64          `json:"duration_ms"`
	Attempts   int            `json:"attempts,omitempty"`
	Reason     string         `json:"reason,omitempty"` // degradation or skip reason
	Error      string         `json:"error,omitempty"`
	TokenUsage TokenUsage     `json:"token_usage,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RunStage is the persisted record of a stage within a run.
type RunStage struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
}

// RunResult is the final artifact bundle persisted with a completed run.
type RunResult struct {
	Report      *Report            `json:"report,omitempty"`
	Quality     *QualityReport     `json:"quality,omitempty"`
	Credibility []CredibilityScore `json:"credibility,omitempty"`
	Conflicts   []Conflict         `json:"conflicts,omitempty"`
	Stages      []StageRecord      `json:"stages,omitempty"`
	TotalTokens int                `json:"total_tokens"`
	TotalCost   float64            `json:"total_cost_usd"`
}

// Run is one pipeline execution for a query.
type Run struct {
	ID        string     `json:"id"`
	Query     Query      `json:"query"`
	SessionID string     `json:"session_id,omitempty"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
