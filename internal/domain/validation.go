package domain

import (
	"fmt"
)

type IssueCode string

const (
	IssueDanglingEdge IssueCode = "dangling_edge"
	IssueCycle        IssueCode = "cycle"
	IssueEmptyGraph   IssueCode = "empty_graph"
	IssueIsolatedNode IssueCode = "isolated_node"
	IssueEmptyConfig  IssueCode = "empty_config"
)

// StructuralIssue is one validation finding. Errors block execution,
// warnings do not.
type StructuralIssue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
	NodeID  string    `json:"nodeId,omitempty"`
	EdgeID  string    `json:"edgeId,omitempty"`
}

func (i StructuralIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

// ValidationResult is the outcome of pipeline validation. ExecutionOrder is
// only usable when IsValid is true; a cyclic pipeline yields no order.
type ValidationResult struct {
	IsValid        bool              `json:"isValid"`
	Errors         []StructuralIssue `json:"errors"`
	Warnings       []StructuralIssue `json:"warnings"`
	ExecutionOrder []string          `json:"executionOrder"`
}
