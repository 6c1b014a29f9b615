package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/flowforge/internal/adapters/engine"
	"github.com/flowforge/flowforge/internal/adapters/validator"
	"github.com/flowforge/flowforge/internal/domain"
	"github.com/flowforge/flowforge/internal/ports"
)

// Registry owns the set of in-flight executions. It validates submitted
// pipelines, assigns execution ids, launches a coordinator goroutine per
// run, and answers status and stop requests. Terminal records are handed
// to the history store and, depending on configuration, kept in memory
// for status queries.
type Registry struct {
	validator   *validator.Validator
	coordinator *engine.Coordinator
	runner      ports.StageRunnerPort
	history     ports.HistoryPort
	emitter     ports.EventEmitterPort
	config      domain.EngineConfig
	logger      *slog.Logger

	mu      sync.RWMutex
	running map[string]*engine.Handle
}

func New(
	v *validator.Validator,
	coordinator *engine.Coordinator,
	runner ports.StageRunnerPort,
	history ports.HistoryPort,
	emitter ports.EventEmitterPort,
	config domain.EngineConfig,
	logger *slog.Logger,
) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		validator:   v,
		coordinator: coordinator,
		runner:      runner,
		history:     history,
		emitter:     emitter,
		config:      config,
		logger:      logger.With("component", "registry"),
		running:     map[string]*engine.Handle{},
	}
}

// ValidatePipeline reports structural problems without executing anything.
func (r *Registry) ValidatePipeline(pipeline *domain.Pipeline) domain.ValidationResult {
	return r.validator.Validate(pipeline)
}

// SubmitExecution validates the pipeline and, if structurally sound, starts
// it asynchronously. The returned execution id is usable immediately for
// status queries and event subscriptions.
func (r *Registry) SubmitExecution(pipeline *domain.Pipeline) (string, error) {
	result := r.validator.Validate(pipeline)
	if !result.IsValid {
		message := "pipeline failed validation"
		if len(result.Errors) > 0 {
			message = result.Errors[0].Message
		}
		return "", domain.Error{
			Type:    domain.ErrorTypeValidation,
			Message: message,
			Details: map[string]interface{}{"issues": result.Errors},
		}
	}

	executionID := uuid.New().String()
	execution := &domain.PipelineExecution{
		ID:        executionID,
		Pipeline:  *pipeline,
		Status:    domain.ExecutionStatusRunning,
		StartedAt: time.Now(),
		Results:   map[string]interface{}{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := engine.NewHandle(execution, cancel)

	r.mu.Lock()
	r.running[executionID] = handle
	r.mu.Unlock()

	r.logger.Info("execution submitted",
		"execution_id", executionID,
		"pipeline_id", pipeline.ID,
		"nodes", len(result.ExecutionOrder))

	go r.coordinator.Execute(ctx, handle, result.ExecutionOrder, func(terminal domain.PipelineExecution) {
		r.onTerminal(terminal)
	})

	return executionID, nil
}

// GetExecutionStatus answers from the live set first, then falls back to
// the history store for executions that have already been retired.
func (r *Registry) GetExecutionStatus(executionID string) (*domain.PipelineExecution, error) {
	r.mu.RLock()
	handle, ok := r.running[executionID]
	r.mu.RUnlock()
	if ok {
		snapshot := handle.Snapshot()
		return &snapshot, nil
	}

	stored, err := r.history.GetExecution(executionID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListExecutions returns the live set merged with up to limit stored
// records, live ones first.
func (r *Registry) ListExecutions(limit int) ([]*domain.PipelineExecution, error) {
	r.mu.RLock()
	live := make([]*domain.PipelineExecution, 0, len(r.running))
	seen := make(map[string]bool, len(r.running))
	for id, handle := range r.running {
		snapshot := handle.Snapshot()
		live = append(live, &snapshot)
		seen[id] = true
	}
	r.mu.RUnlock()

	stored, err := r.history.ListExecutions(limit)
	if err != nil {
		return nil, err
	}
	for _, execution := range stored {
		if seen[execution.ID] {
			continue
		}
		live = append(live, execution)
		if limit > 0 && len(live) >= limit {
			break
		}
	}
	return live, nil
}

// StopExecution cancels a running execution and kills any subprocesses it
// spawned. Stopping an already terminal execution finds nothing to do and
// succeeds; only an id never seen returns a not-found error.
func (r *Registry) StopExecution(executionID string) error {
	r.mu.RLock()
	handle, ok := r.running[executionID]
	r.mu.RUnlock()
	if !ok {
		if _, err := r.history.GetExecution(executionID); err == nil {
			return nil
		}
		return domain.NewNotFoundError("execution", executionID)
	}

	if handle.Status() != domain.ExecutionStatusRunning {
		return nil
	}

	handle.Mutate(func(e *domain.PipelineExecution) {
		if e.Status != domain.ExecutionStatusRunning {
			return
		}
		now := time.Now()
		e.Status = domain.ExecutionStatusError
		e.Error = "execution stopped by user"
		e.CompletedAt = &now
	})
	handle.Cancel()

	killed := r.runner.KillByExecution(executionID)
	r.logger.Info("execution stopped",
		"execution_id", executionID,
		"killed_processes", killed)

	snapshot := handle.Snapshot()
	if err := r.history.SaveExecution(&snapshot); err != nil {
		r.logger.Error("failed to persist stopped execution",
			"execution_id", executionID,
			"error", err.Error())
	}

	if !r.config.RetainStopped {
		r.mu.Lock()
		delete(r.running, executionID)
		r.mu.Unlock()
	}
	return nil
}

// RunningCount reports the number of executions still tracked in memory.
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.running)
}

// onTerminal persists the final record and retires the live handle. Records
// stopped through StopExecution may already be persisted; saving again is
// an idempotent overwrite keyed by execution id.
func (r *Registry) onTerminal(terminal domain.PipelineExecution) {
	if err := r.history.SaveExecution(&terminal); err != nil {
		r.logger.Error("failed to persist execution",
			"execution_id", terminal.ID,
			"error", err.Error())
		return
	}

	r.mu.Lock()
	delete(r.running, terminal.ID)
	r.mu.Unlock()
}
