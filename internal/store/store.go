// Package store persists pipeline runs, per-stage telemetry, and the
// append-only per-user session history.
package store

import (
	"context"

	"github.com/sells-group/inquiry-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	UserID string          `json:"user_id,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, query model.Query, sessionID string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, record *model.StageRecord) error

	// Session history. Append-only: read before classification for
	// personalization, written once after a run completes.
	SessionHistory(ctx context.Context, userID string, limit int) ([]model.SessionEntry, error)
	AppendSession(ctx context.Context, userID string, entry model.SessionEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
