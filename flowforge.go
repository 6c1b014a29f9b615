// Package flowforge provides a dynamic pipeline execution engine for Go
// applications.
//
// Pipelines are directed graphs of typed nodes (input, processing, ai,
// output, condition) connected by handle-labelled edges. FlowForge
// validates the graph, derives a deterministic topological execution
// order, runs nodes sequentially while threading outputs to dependents,
// and broadcasts lifecycle events to subscribers. Script-backed stages run
// in supervised external worker processes.
//
// Basic usage:
//
//	manager, err := flowforge.New(flowforge.Config{DataDir: "./data"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.Close()
//
//	executionID, err := manager.SubmitExecution(&flowforge.Pipeline{
//	    ID:    "my-pipeline",
//	    Nodes: []flowforge.PipelineNode{{ID: "in", Type: flowforge.NodeTypeInput}},
//	})
package flowforge

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/flowforge/flowforge/internal/adapters/engine"
	"github.com/flowforge/flowforge/internal/adapters/events"
	"github.com/flowforge/flowforge/internal/adapters/executor"
	"github.com/flowforge/flowforge/internal/adapters/history"
	"github.com/flowforge/flowforge/internal/adapters/inference"
	"github.com/flowforge/flowforge/internal/adapters/registry"
	"github.com/flowforge/flowforge/internal/adapters/runner"
	"github.com/flowforge/flowforge/internal/adapters/validator"
	"github.com/flowforge/flowforge/internal/api"
	"github.com/flowforge/flowforge/internal/domain"
	"github.com/flowforge/flowforge/internal/ports"
)

// Config controls the assembled engine. Zero values take defaults.
type Config = domain.Config

// Pipeline is a directed graph of typed nodes and handle-labelled edges.
type Pipeline = domain.Pipeline

// PipelineNode is one node of a pipeline definition.
type PipelineNode = domain.PipelineNode

// Connection is one directed edge between two nodes.
type Connection = domain.Connection

// PipelineExecution is one run of a pipeline definition.
type PipelineExecution = domain.PipelineExecution

// ValidationResult reports structural findings and, when valid, the
// execution order.
type ValidationResult = domain.ValidationResult

// Event is the envelope delivered to execution observers.
type Event = domain.Event

type NodeType = domain.NodeType

const (
	NodeTypeInput      = domain.NodeTypeInput
	NodeTypeProcessing = domain.NodeTypeProcessing
	NodeTypeAI         = domain.NodeTypeAI
	NodeTypeOutput     = domain.NodeTypeOutput
	NodeTypeCondition  = domain.NodeTypeCondition
)

// Manager wires the engine's adapters together behind one entry point.
// It validates, executes, observes, and persists pipeline executions.
type Manager struct {
	registry *registry.Registry
	emitter  *events.Emitter
	history  *history.Store
	server   *api.Server
	logger   *slog.Logger
}

// New assembles a Manager from config. The caller owns the returned
// Manager and must Close it to release the history store.
func New(config Config) (*Manager, error) {
	config.ApplyDefaults()
	logger := config.Logger

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, err
	}

	store, err := history.Open(config.DataDir, logger)
	if err != nil {
		return nil, err
	}

	emitter := events.NewEmitter(logger)
	stageRunner := runner.New(config.Stage, emitter, logger)

	var infer ports.InferencePort
	if config.Inference.BaseURL != "" || config.Inference.APIKey != "" {
		infer = inference.New(config.Inference, logger)
	}

	nodeExecutor := executor.New(emitter, stageRunner, infer, config.Engine.HTTPTimeout, logger)
	coordinator := engine.NewCoordinator(nodeExecutor, emitter, logger)
	reg := registry.New(
		validator.New(logger),
		coordinator,
		stageRunner,
		store,
		emitter,
		config.Engine,
		logger,
	)

	m := &Manager{
		registry: reg,
		emitter:  emitter,
		history:  store,
		logger:   logger,
	}
	m.server = api.NewServer(reg, emitter, config.Server, logger)
	return m, nil
}

// ValidatePipeline checks structure without executing anything.
func (m *Manager) ValidatePipeline(pipeline *Pipeline) ValidationResult {
	return m.registry.ValidatePipeline(pipeline)
}

// SubmitExecution starts the pipeline asynchronously and returns its
// execution id.
func (m *Manager) SubmitExecution(pipeline *Pipeline) (string, error) {
	return m.registry.SubmitExecution(pipeline)
}

// GetExecutionStatus returns the live or stored record for an execution.
func (m *Manager) GetExecutionStatus(executionID string) (*PipelineExecution, error) {
	return m.registry.GetExecutionStatus(executionID)
}

// StopExecution cancels a running execution and kills its subprocesses.
func (m *Manager) StopExecution(executionID string) error {
	return m.registry.StopExecution(executionID)
}

// ListExecutions returns live and stored executions, newest stored last.
func (m *Manager) ListExecutions(limit int) ([]*PipelineExecution, error) {
	return m.registry.ListExecutions(limit)
}

// SubscribeEvents observes one execution's event feed. The returned cancel
// function is idempotent and closes the channel.
func (m *Manager) SubscribeEvents(executionID string) (<-chan Event, func()) {
	return m.emitter.Subscribe(domain.ExecutionTopic(executionID))
}

// Serve runs the HTTP API until the context is cancelled.
func (m *Manager) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := m.server.Shutdown(context.Background()); err != nil && err != http.ErrServerClosed {
			m.logger.Error("http shutdown failed", "error", err.Error())
		}
		return <-errCh
	}
}

// Close releases the history store. In-flight executions are not stopped;
// call StopExecution first if that matters to the caller.
func (m *Manager) Close() error {
	return m.history.Close()
}
