package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/internal/domain"
	"github.com/flowforge/flowforge/internal/ports"
)

// Coordinator drives one end-to-end execution: it walks the precomputed
// topological order, invokes the node executor per node, threads outputs
// to dependents, tracks progress, and reports every transition to
// observers. Nodes run strictly sequentially; cancellation is checked at
// node boundaries.
type Coordinator struct {
	executor ports.NodeExecutorPort
	emitter  ports.EventEmitterPort
	logger   *slog.Logger
}

func NewCoordinator(executor ports.NodeExecutorPort, emitter ports.EventEmitterPort, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		executor: executor,
		emitter:  emitter,
		logger:   logger.With("component", "coordinator"),
	}
}

// Execute runs the pipeline to a terminal state, mutating the handle's
// record in place. onTerminal, if non-nil, receives a snapshot of the
// terminal record exactly once.
func (c *Coordinator) Execute(ctx context.Context, handle *Handle, order []string, onTerminal func(domain.PipelineExecution)) {
	execution := handle.Snapshot()
	pipeline := execution.Pipeline
	topic := domain.ExecutionTopic(execution.ID)

	c.logger.Info("execution started",
		"execution_id", execution.ID,
		"pipeline_id", pipeline.ID,
		"nodes", len(order))

	c.emit(topic, domain.Event{
		Type:        domain.EventPipelineStart,
		ExecutionID: execution.ID,
		PipelineID:  pipeline.ID,
		Data: map[string]interface{}{
			"name":      pipeline.Name,
			"nodeCount": len(order),
		},
		Timestamp: time.Now(),
	})

	// Per-run output store; discarded when the execution ends and never
	// shared with concurrent executions of the same definition.
	outputsByNode := make(map[string]domain.NodeOutputs, len(order))

	for i, nodeID := range order {
		if ctx.Err() != nil {
			c.fail(handle, topic, nodeID, "execution cancelled", onTerminal)
			return
		}

		node := pipeline.NodeByID(nodeID)
		if node == nil {
			c.fail(handle, topic, nodeID, "execution order references unknown node "+nodeID, onTerminal)
			return
		}

		c.emit(topic, domain.Event{
			Type:        domain.EventNodeStart,
			ExecutionID: execution.ID,
			PipelineID:  pipeline.ID,
			NodeID:      nodeID,
			Data:        map[string]interface{}{"nodeType": string(node.Type)},
			Timestamp:   time.Now(),
		})

		inputs := gatherInputs(&pipeline, nodeID, outputsByNode)

		current := handle.Snapshot()
		outputs, err := c.executor.ExecuteNode(ctx, &current, *node, inputs)
		if err != nil {
			c.logger.Error("node execution failed",
				"execution_id", execution.ID,
				"node_id", nodeID,
				"error", err.Error())
			c.fail(handle, topic, nodeID, err.Error(), onTerminal)
			return
		}

		outputsByNode[nodeID] = outputs
		progress := float64(i+1) / float64(len(order)) * 100

		handle.Mutate(func(e *domain.PipelineExecution) {
			e.Progress = progress
			if e.Results == nil {
				e.Results = map[string]interface{}{}
			}
			e.Results[nodeID] = map[string]interface{}(outputs)
		})

		c.emit(topic, domain.Event{
			Type:        domain.EventNodeComplete,
			ExecutionID: execution.ID,
			PipelineID:  pipeline.ID,
			NodeID:      nodeID,
			Data:        map[string]interface{}{"progress": progress},
			Timestamp:   time.Now(),
		})

		c.logger.Debug("node completed",
			"execution_id", execution.ID,
			"node_id", nodeID,
			"progress", progress)
	}

	var duration time.Duration
	handle.Mutate(func(e *domain.PipelineExecution) {
		now := time.Now()
		e.Status = domain.ExecutionStatusCompleted
		e.Progress = 100
		e.CompletedAt = &now
		duration = now.Sub(e.StartedAt)
	})

	c.emit(topic, domain.Event{
		Type:        domain.EventPipelineComplete,
		ExecutionID: execution.ID,
		PipelineID:  pipeline.ID,
		Data:        map[string]interface{}{"duration": duration.String()},
		Timestamp:   time.Now(),
	})

	c.logger.Info("execution completed",
		"execution_id", execution.ID,
		"pipeline_id", pipeline.ID,
		"duration", duration)

	if onTerminal != nil {
		onTerminal(handle.Snapshot())
	}
}

// fail transitions the execution to error unless a stop request already
// did, emits the terminal error event, and stops processing remaining
// nodes. Side effects of earlier nodes are not rolled back.
func (c *Coordinator) fail(handle *Handle, topic, nodeID, message string, onTerminal func(domain.PipelineExecution)) {
	var execution domain.PipelineExecution
	handle.Mutate(func(e *domain.PipelineExecution) {
		if e.Status == domain.ExecutionStatusRunning {
			now := time.Now()
			e.Status = domain.ExecutionStatusError
			e.Error = message
			e.CompletedAt = &now
		}
		execution = *e
	})

	c.emit(topic, domain.Event{
		Type:        domain.EventPipelineError,
		ExecutionID: execution.ID,
		PipelineID:  execution.Pipeline.ID,
		NodeID:      nodeID,
		Data:        map[string]interface{}{"error": message},
		Timestamp:   time.Now(),
	})

	if onTerminal != nil {
		onTerminal(handle.Snapshot())
	}
}

// emit never lets a transport problem reach the coordinator's control flow.
func (c *Coordinator) emit(topic string, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event emission panicked", "topic", topic, "panic", r)
		}
	}()
	c.emitter.Publish(topic, event)
}

// gatherInputs assembles a node's input bag by scanning every edge whose
// target is the node and reading the producer's recorded outputs, keyed by
// the edge's source handle. Later edges sharing a handle overwrite earlier
// ones; last write wins. Edges leaving a condition node only contribute
// when their handle matches the evaluated boolean.
func gatherInputs(pipeline *domain.Pipeline, nodeID string, outputsByNode map[string]domain.NodeOutputs) domain.NodeInputs {
	inputs := domain.NodeInputs{}
	for _, edge := range pipeline.Connections {
		if edge.Target != nodeID {
			continue
		}
		produced, ok := outputsByNode[edge.Source]
		if !ok {
			continue
		}
		if branch, isBranch := produced["condition"].(bool); isBranch {
			handle := edge.Handle()
			if handle == "true" && !branch {
				continue
			}
			if handle == "false" && branch {
				continue
			}
		}
		inputs[edge.Handle()] = map[string]interface{}(produced)
	}
	return inputs
}
