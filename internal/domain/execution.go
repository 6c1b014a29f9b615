package domain

import (
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusError     ExecutionStatus = "error"
)

// PipelineExecution is one run of a pipeline definition. The id is distinct
// from the pipeline's own id; the same definition may be executed many times.
type PipelineExecution struct {
	ID          string                 `json:"id"`
	Pipeline    Pipeline               `json:"pipeline"`
	Status      ExecutionStatus        `json:"status"`
	Progress    float64                `json:"progress"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
	Results     map[string]interface{} `json:"results,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// NodeInputs is the per-node input bag assembled from upstream outputs,
// keyed by the producing edge's source handle. Later edges sharing a handle
// overwrite earlier ones; last write wins.
type NodeInputs map[string]map[string]interface{}

// NodeOutputs is what one node execution produced, visible to dependents.
type NodeOutputs map[string]interface{}

// StageResult is the outcome of one external worker run.
type StageResult struct {
	StageID  string                 `json:"stageId"`
	Success  bool                   `json:"success"`
	ExitCode int                    `json:"exitCode"`
	Outputs  map[string]interface{} `json:"outputs,omitempty"`
	Logs     []string               `json:"logs,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// StageRunConfig is the run-configuration artifact handed to a stage worker.
// The worker receives the file path and the stage id as positional arguments.
type StageRunConfig struct {
	PipelineID  string                 `yaml:"pipeline_id"`
	ExecutionID string                 `yaml:"execution_id"`
	StageID     string                 `yaml:"stage_id"`
	Parameters  map[string]interface{} `yaml:"parameters,omitempty"`
}
