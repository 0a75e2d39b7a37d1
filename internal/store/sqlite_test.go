package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inquiry-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_RunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.Query{Text: "best noise cancelling headphones", UserID: "u1"}, "sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusClassifying))

	result := &model.RunResult{
		Report:  &model.Report{Body: "Findings [1]."},
		Quality: &model.QualityReport{Overall: 84.5, Grade: model.GradeB},
		Stages: []model.StageRecord{
			{Name: "classify", Status: model.StageStatusComplete, Duration: 120},
		},
		TotalTokens: 4200,
	}
	require.NoError(t, s.UpdateRunResult(ctx, run.ID, model.RunStatusDone, result))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, got.Status)
	assert.Equal(t, "best noise cancelling headphones", got.Query.Text)
	assert.Equal(t, "sess-1", got.SessionID)
	require.NotNil(t, got.Result)
	assert.Equal(t, model.GradeB, got.Result.Quality.Grade)
	assert.Equal(t, 4200, got.Result.TotalTokens)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateStatus_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateRunStatus(context.Background(), "nope", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1, err := s.CreateRun(ctx, model.Query{Text: "q1", UserID: "alice"}, "")
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, model.Query{Text: "q2", UserID: "bob"}, "")
	require.NoError(t, err)

	require.NoError(t, s.UpdateRunStatus(ctx, r1.ID, model.RunStatusDone))

	done, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusDone})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, r1.ID, done[0].ID)

	alice, err := s.ListRuns(ctx, RunFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "q1", alice[0].Query.Text)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_StageLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.Query{Text: "q"}, "")
	require.NoError(t, err)

	stage, err := s.CreateStage(ctx, run.ID, "fetch")
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusRunning, stage.Status)

	record := &model.StageRecord{
		Name:     "fetch",
		Status:   model.StageStatusDegraded,
		Duration: 2500,
		Attempts: 2,
		Reason:   "2 of 5 sources failed",
	}
	require.NoError(t, s.CompleteStage(ctx, stage.ID, record))

	err = s.CompleteStage(ctx, "missing", record)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_SessionHistory_AppendOnlyOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, q := range []string{"first", "second", "third"} {
		require.NoError(t, s.AppendSession(ctx, "u1", model.SessionEntry{
			Query:     q,
			Category:  model.CategoryFactual,
			Topics:    []string{"headphones"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.AppendSession(ctx, "u2", model.SessionEntry{
		Query: "other user", CreatedAt: base,
	}))

	entries, err := s.SessionHistory(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Query, "most recent first")
	assert.Equal(t, "second", entries[1].Query)
	assert.Equal(t, model.CategoryFactual, entries[0].Category)
	assert.Equal(t, []string{"headphones"}, entries[0].Topics)
}

func TestSQLite_SessionHistory_EmptyUser(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.SessionHistory(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_AppendSession_RequiresUser(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendSession(context.Background(), "  ", model.SessionEntry{Query: "q"})
	require.Error(t, err)
}
