package runner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowforge/flowforge/internal/adapters/events"
	"github.com/flowforge/flowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorker(t *testing.T, dir, script string) string {
	t.Helper()
	path := filepath.Join(dir, "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func newTestRunner(t *testing.T, script string) (*Runner, *events.Emitter) {
	dir := t.TempDir()
	worker := writeWorker(t, dir, script)
	emitter := events.NewEmitter(slog.Default())
	r := New(domain.StageConfig{
		WorkerCommand: worker,
		WorkDir:       filepath.Join(dir, "stages"),
	}, emitter, slog.Default())
	return r, emitter
}

func TestRunStage_Success(t *testing.T) {
	r, _ := newTestRunner(t, `echo "processing $2"
echo "done"
exit 0`)

	result, err := r.RunStage(context.Background(), "exec-1", "pipe-1", "stage-a", nil)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Logs, "processing stage-a")
	assert.Contains(t, result.Logs, "done")
	assert.Equal(t, 0, r.LiveProcessCount())
}

func TestRunStage_FailureCarriesLastStderr(t *testing.T) {
	r, _ := newTestRunner(t, `echo "starting"
echo "fatal: bad input" >&2
exit 3`)

	result, err := r.RunStage(context.Background(), "exec-1", "pipe-1", "stage-b", nil)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "fatal: bad input", result.Error)
}

func TestRunStage_FailureWithoutStderrGetsGenericMessage(t *testing.T) {
	r, _ := newTestRunner(t, `exit 1`)

	result, err := r.RunStage(context.Background(), "exec-1", "pipe-1", "stage-c", nil)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "exited with code 1")
}

func TestRunStage_StreamsLogEvents(t *testing.T) {
	r, emitter := newTestRunner(t, `echo "out line"
echo "err line" >&2
exit 0`)

	ch, cancel := emitter.Subscribe(domain.ExecutionTopic("exec-2"))
	defer cancel()

	_, err := r.RunStage(context.Background(), "exec-2", "pipe-1", "stage-d", nil)
	require.NoError(t, err)

	levels := map[string]string{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-ch:
			require.Equal(t, domain.EventLog, event.Type)
			assert.Equal(t, "stage-d", event.NodeID)
			levels[event.Data["message"].(string)] = event.Data["level"].(string)
		case <-time.After(2 * time.Second):
			t.Fatal("missing log event")
		}
	}
	assert.Equal(t, "info", levels["out line"])
	assert.Equal(t, "error", levels["err line"])
}

func TestRunStage_WritesRunConfigArtifact(t *testing.T) {
	r, _ := newTestRunner(t, `grep -q "stage_id: stage-e" "$1" || exit 9
exit 0`)

	result, err := r.RunStage(context.Background(), "exec-3", "pipe-1", "stage-e",
		map[string]interface{}{"script": "noop"})

	require.NoError(t, err)
	assert.True(t, result.Success, "worker must find its stage id in the run config")
}

func TestRunStage_ReadsDeclaredResult(t *testing.T) {
	r, _ := newTestRunner(t, `echo '{"data": [1, 2]}' > "$1.result.json"
exit 0`)

	result, err := r.RunStage(context.Background(), "exec-4", "pipe-1", "stage-f", nil)

	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Outputs)
	assert.Len(t, result.Outputs["data"], 2)
}

func TestKillByExecution(t *testing.T) {
	r, _ := newTestRunner(t, `sleep 30`)

	done := make(chan *domain.StageResult, 1)
	go func() {
		result, _ := r.RunStage(context.Background(), "exec-5", "pipe-1", "stage-g", nil)
		done <- result
	}()

	require.Eventually(t, func() bool {
		return r.LiveProcessCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	killed := r.KillByExecution("exec-5")
	assert.Equal(t, 1, killed)

	select {
	case result := <-done:
		assert.False(t, result.Success)
	case <-time.After(5 * time.Second):
		t.Fatal("killed worker did not exit")
	}

	assert.Equal(t, 0, r.KillByExecution("exec-5"), "second kill finds nothing")
}

func TestKillByExecution_DoesNotTouchSiblings(t *testing.T) {
	r, _ := newTestRunner(t, `sleep 30`)

	go func() { _, _ = r.RunStage(context.Background(), "exec-a", "pipe-1", "s1", nil) }()
	go func() { _, _ = r.RunStage(context.Background(), "exec-b", "pipe-1", "s1", nil) }()

	require.Eventually(t, func() bool {
		return r.LiveProcessCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, r.KillByExecution("exec-a"))
	assert.Equal(t, 1, r.LiveProcessCount())

	r.KillByExecution("exec-b")
}
