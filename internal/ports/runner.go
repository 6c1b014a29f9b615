package ports

import (
	"context"

	"github.com/flowforge/flowforge/internal/domain"
)

// StageRunnerPort spawns and supervises external worker processes for
// script-backed stages. One live process handle is tracked per
// (execution id, stage id) pair so cancellation can target exactly one
// subprocess.
type StageRunnerPort interface {
	RunStage(ctx context.Context, executionID, pipelineID, stageID string, params map[string]interface{}) (*domain.StageResult, error)

	// KillByExecution best-effort kills every live process whose tracked
	// key is prefixed by the execution id.
	KillByExecution(executionID string) int
}
