package history

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/flowforge/flowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleExecution(id string, startedAt time.Time) *domain.PipelineExecution {
	completed := startedAt.Add(time.Second)
	return &domain.PipelineExecution{
		ID: id,
		Pipeline: domain.Pipeline{
			ID:   "pipe-1",
			Name: "sample",
			Nodes: []domain.PipelineNode{
				{ID: "a", Type: domain.NodeTypeInput},
			},
		},
		Status:      domain.ExecutionStatusCompleted,
		Progress:    100,
		StartedAt:   startedAt,
		CompletedAt: &completed,
		Results:     map[string]interface{}{"a": map[string]interface{}{"data": "x"}},
	}
}

func TestSaveAndGetExecution(t *testing.T) {
	store := openStore(t)

	original := sampleExecution("exec-1", time.Now())
	require.NoError(t, store.SaveExecution(original))

	loaded, err := store.GetExecution("exec-1")
	require.NoError(t, err)
	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.Status, loaded.Status)
	assert.Equal(t, original.Progress, loaded.Progress)
	assert.Equal(t, "pipe-1", loaded.Pipeline.ID)
	require.NotNil(t, loaded.CompletedAt)
}

func TestGetExecution_NotFound(t *testing.T) {
	store := openStore(t)

	_, err := store.GetExecution("missing")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestSaveExecution_OverwritesByID(t *testing.T) {
	store := openStore(t)

	first := sampleExecution("exec-1", time.Now())
	first.Status = domain.ExecutionStatusRunning
	first.Progress = 50
	require.NoError(t, store.SaveExecution(first))

	second := sampleExecution("exec-1", first.StartedAt)
	require.NoError(t, store.SaveExecution(second))

	loaded, err := store.GetExecution("exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, loaded.Status)
	assert.Equal(t, 100.0, loaded.Progress)
}

func TestListExecutions_NewestFirstWithLimit(t *testing.T) {
	store := openStore(t)

	base := time.Now()
	for i := 0; i < 5; i++ {
		e := sampleExecution(fmt.Sprintf("exec-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.SaveExecution(e))
	}

	listed, err := store.ListExecutions(3)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "exec-4", listed[0].ID)
	assert.Equal(t, "exec-3", listed[1].ID)
	assert.Equal(t, "exec-2", listed[2].ID)

	all, err := store.ListExecutions(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
