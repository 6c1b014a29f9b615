package validator

import (
	"fmt"
	"log/slog"

	"github.com/flowforge/flowforge/internal/domain"
)

// Validator checks structural soundness of a pipeline and computes a
// deterministic execution order.
type Validator struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		logger: logger.With("component", "validator"),
	}
}

// Validate builds adjacency and in-degree tables over the node set, reports
// dangling edges as non-fatal errors, and runs Kahn's algorithm with ties
// broken by first-seen order relative to the pipeline's node list. A cycle
// is fatal and yields no execution order. Calling Validate twice on the
// same unchanged pipeline yields the same result.
func (v *Validator) Validate(pipeline *domain.Pipeline) domain.ValidationResult {
	result := domain.ValidationResult{
		Errors:   []domain.StructuralIssue{},
		Warnings: []domain.StructuralIssue{},
	}

	if len(pipeline.Nodes) == 0 {
		result.Errors = append(result.Errors, domain.StructuralIssue{
			Code:    domain.IssueEmptyGraph,
			Message: "pipeline has no nodes",
		})
		return result
	}

	nodeSet := make(map[string]bool, len(pipeline.Nodes))
	for _, node := range pipeline.Nodes {
		nodeSet[node.ID] = true
	}

	adjacency := make(map[string][]string, len(pipeline.Nodes))
	inDegree := make(map[string]int, len(pipeline.Nodes))
	connected := make(map[string]bool)
	for _, node := range pipeline.Nodes {
		inDegree[node.ID] = 0
	}

	for _, edge := range pipeline.Connections {
		if !nodeSet[edge.Source] || !nodeSet[edge.Target] {
			result.Errors = append(result.Errors, domain.StructuralIssue{
				Code:    domain.IssueDanglingEdge,
				EdgeID:  edge.ID,
				Message: fmt.Sprintf("edge %s references missing node (%s -> %s)", edge.ID, edge.Source, edge.Target),
			})
			continue
		}
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		inDegree[edge.Target]++
		connected[edge.Source] = true
		connected[edge.Target] = true
	}

	for _, node := range pipeline.Nodes {
		if len(pipeline.Nodes) > 1 && !connected[node.ID] {
			result.Warnings = append(result.Warnings, domain.StructuralIssue{
				Code:    domain.IssueIsolatedNode,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %s has no incoming or outgoing edges", node.ID),
			})
		}
		if len(node.Config) == 0 {
			result.Warnings = append(result.Warnings, domain.StructuralIssue{
				Code:    domain.IssueEmptyConfig,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %s has no configuration", node.ID),
			})
		}
	}

	order := v.topologicalOrder(pipeline, adjacency, inDegree)
	if len(order) < len(pipeline.Nodes) {
		result.Errors = append(result.Errors, domain.StructuralIssue{
			Code:    domain.IssueCycle,
			Message: "pipeline contains a cycle",
		})
		v.logger.Debug("cycle detected",
			"pipeline_id", pipeline.ID,
			"ordered", len(order),
			"nodes", len(pipeline.Nodes))
		return result
	}

	result.ExecutionOrder = order
	result.IsValid = len(result.Errors) == 0

	v.logger.Debug("pipeline validated",
		"pipeline_id", pipeline.ID,
		"valid", result.IsValid,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings))

	return result
}

// topologicalOrder is Kahn's algorithm over the dangling-free adjacency
// table. The queue is FIFO and seeded in node list order, so ordering is
// stable with respect to the pipeline's node ordering.
func (v *Validator) topologicalOrder(pipeline *domain.Pipeline, adjacency map[string][]string, inDegree map[string]int) []string {
	remaining := make(map[string]int, len(inDegree))
	for id, deg := range inDegree {
		remaining[id] = deg
	}

	var queue []string
	for _, node := range pipeline.Nodes {
		if remaining[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	order := make([]string, 0, len(pipeline.Nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, successor := range adjacency[current] {
			remaining[successor]--
			if remaining[successor] == 0 {
				queue = append(queue, successor)
			}
		}
	}

	return order
}
