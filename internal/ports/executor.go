package ports

import (
	"context"

	"github.com/flowforge/flowforge/internal/domain"
)

// NodeExecutorPort runs one node according to its declared type, consuming
// upstream outputs and producing outputs for downstream nodes.
type NodeExecutorPort interface {
	ExecuteNode(ctx context.Context, execution *domain.PipelineExecution, node domain.PipelineNode, inputs domain.NodeInputs) (domain.NodeOutputs, error)
}
