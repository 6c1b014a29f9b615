package executor

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/flowforge/flowforge/internal/domain"
)

func (e *Executor) executeAI(ctx context.Context, node domain.PipelineNode, inputs domain.NodeInputs) (domain.NodeOutputs, error) {
	aiType := node.ConfigString("aiType")

	switch aiType {
	case "llm", "classification", "generation", "analysis":
	default:
		return nil, domain.NewNodeError(node.ID,
			fmt.Sprintf("unknown ai type %q", aiType),
			map[string]interface{}{"ai_type": aiType})
	}

	model := node.ConfigString("model")
	if model == "" {
		model = "default"
	}

	if e.inference != nil {
		return e.executeInference(ctx, node, aiType, model, inputs)
	}

	// No provider configured; return a structured placeholder.
	return domain.NodeOutputs{
		"result": map[string]interface{}{
			"type":     aiType,
			"model":    model,
			"response": fmt.Sprintf("%s result placeholder for node %s", aiType, node.ID),
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}, nil
}

func (e *Executor) executeInference(ctx context.Context, node domain.PipelineNode, aiType, model string, inputs domain.NodeInputs) (domain.NodeOutputs, error) {
	prompt := node.ConfigString("prompt")
	if data := primaryData(inputs); data != nil {
		serialized, err := json.Marshal(data)
		if err == nil {
			prompt = prompt + "\n\nInput data:\n" + string(serialized)
		}
	}

	response, err := e.inference.Complete(ctx, model, prompt)
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("inference: %v", err),
			map[string]interface{}{"ai_type": aiType, "model": model})
	}

	return domain.NodeOutputs{
		"result": map[string]interface{}{
			"type":     aiType,
			"model":    model,
			"response": response,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}, nil
}
