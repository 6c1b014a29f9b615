package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"dario.cat/mergo"
	"github.com/flowforge/flowforge/internal/domain"
	"github.com/flowforge/flowforge/internal/ports"
)

// Executor dispatches node execution by the node's declared type. Each type
// carries its own sub-contract; any failure aborts the owning execution.
type Executor struct {
	emitter   ports.EventEmitterPort
	runner    ports.StageRunnerPort
	inference ports.InferencePort
	client    *http.Client
	logger    *slog.Logger
}

func New(emitter ports.EventEmitterPort, runner ports.StageRunnerPort, inference ports.InferencePort, httpTimeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if httpTimeout == 0 {
		httpTimeout = 30 * time.Second
	}
	return &Executor{
		emitter:   emitter,
		runner:    runner,
		inference: inference,
		client:    &http.Client{Timeout: httpTimeout},
		logger:    logger.With("component", "node-executor"),
	}
}

func (e *Executor) ExecuteNode(ctx context.Context, execution *domain.PipelineExecution, node domain.PipelineNode, inputs domain.NodeInputs) (domain.NodeOutputs, error) {
	e.logger.Debug("executing node",
		"execution_id", execution.ID,
		"node_id", node.ID,
		"node_type", node.Type)

	switch node.Type {
	case domain.NodeTypeInput:
		return e.executeInput(ctx, node)
	case domain.NodeTypeProcessing:
		return e.executeProcessing(ctx, execution, node, inputs)
	case domain.NodeTypeAI:
		return e.executeAI(ctx, node, inputs)
	case domain.NodeTypeOutput:
		return e.executeOutput(ctx, execution, node, inputs)
	case domain.NodeTypeCondition:
		return e.executeCondition(node, inputs)
	default:
		return nil, domain.NewNodeError(node.ID,
			fmt.Sprintf("unknown node type %q", node.Type),
			map[string]interface{}{"node_type": string(node.Type)})
	}
}

// primaryData extracts the working payload from the input bag: the
// "default" handle wins, otherwise the first handle carrying a "data" key.
func primaryData(inputs domain.NodeInputs) interface{} {
	if bag, ok := inputs[domain.DefaultHandle]; ok {
		if data, ok := bag["data"]; ok {
			return data
		}
	}
	for _, bag := range inputs {
		if data, ok := bag["data"]; ok {
			return data
		}
	}
	return nil
}

// unionInputs flattens every handle's bag into one map. Condition nodes
// evaluate their predicate against this union.
func unionInputs(inputs domain.NodeInputs) map[string]interface{} {
	union := map[string]interface{}{}
	for _, bag := range inputs {
		if err := mergo.Merge(&union, bag, mergo.WithOverride); err != nil {
			// mergo only fails on non-map destinations; fall back to
			// direct assignment.
			for k, v := range bag {
				union[k] = v
			}
		}
	}
	return union
}
