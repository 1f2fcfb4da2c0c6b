package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalfeed/curator/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, []model.Source{model.SourceX, model.SourceWeb})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, []model.Source{model.SourceX, model.SourceWeb}, got.Sources)
	assert.Equal(t, model.RunStatusQueued, got.Status)
	assert.Nil(t, got.Result)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, []model.Source{model.SourceX})
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusClassifying))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusClassifying, got.Status)
}

func TestSQLite_UpdateRunStatus_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateRunStatus(context.Background(), "nonexistent", model.RunStatusComplete)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateRunResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, []model.Source{model.SourceX})
	require.NoError(t, err)

	result := &model.RunResult{
		ItemsScraped:    42,
		ItemsAggregated: 40,
		NewsCount:       7,
		ChatterCount:    33,
		DigestPath:      "output/digest.md",
	}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, model.RunStatusComplete, result))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 42, got.Result.ItemsScraped)
	assert.Equal(t, 7, got.Result.NewsCount)
	assert.Equal(t, "output/digest.md", got.Result.DigestPath)
}

func TestSQLite_UpdateRunResult_FailedRunKeepsPartialResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, []model.Source{model.SourceX})
	require.NoError(t, err)

	result := &model.RunResult{ItemsScraped: 10}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, model.RunStatusFailed, result))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 10, got.Result.ItemsScraped)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateRun(ctx, []model.Source{model.SourceX})
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, []model.Source{model.SourceWeb})
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunStatus(ctx, first.ID, model.RunStatusComplete))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, first.ID, complete[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_Stages(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, []model.Source{model.SourceX})
	require.NoError(t, err)

	stage, err := st.CreateStage(ctx, run.ID, "scrape")
	require.NoError(t, err)
	require.NotEmpty(t, stage.ID)
	assert.Equal(t, model.StageStatusRunning, stage.Status)

	err = st.CompleteStage(ctx, stage.ID, &model.StageResult{
		Name:     "scrape",
		Status:   model.StageStatusComplete,
		Duration: 1200,
	})
	require.NoError(t, err)
}

func TestSQLite_CompleteStage_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteStage(context.Background(), "nonexistent", &model.StageResult{Status: model.StageStatusComplete})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}
