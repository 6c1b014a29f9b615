package executor

import (
	"time"

	"github.com/flowforge/flowforge/internal/domain"
)

// executeCondition evaluates one predicate clause against the union of
// upstream inputs. Downstream edges pick a branch by matching their source
// handle ("true"/"false") against the boolean condition output.
func (e *Executor) executeCondition(node domain.PipelineNode, inputs domain.NodeInputs) (domain.NodeOutputs, error) {
	field := node.ConfigString("field")
	operator := node.ConfigString("operator")
	target := node.Config["value"]

	union := unionInputs(inputs)

	var value interface{}
	if v, ok := union[field]; ok {
		value = v
	} else if data, ok := union["data"].(map[string]interface{}); ok {
		value = data[field]
	}

	passed := compareValues(operator, value, target)

	e.logger.Debug("condition evaluated",
		"node_id", node.ID,
		"field", field,
		"operator", operator,
		"result", passed)

	return domain.NodeOutputs{
		"condition": passed,
		"data":      union["data"],
		"metadata": map[string]interface{}{
			"evaluatedAt": time.Now().Format(time.RFC3339),
			"field":       field,
			"operator":    operator,
		},
	}, nil
}
