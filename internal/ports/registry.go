package ports

import (
	"github.com/flowforge/flowforge/internal/domain"
)

// RegistryPort is the boundary surface exposed to the REST/UI collaborators.
type RegistryPort interface {
	ValidatePipeline(pipeline *domain.Pipeline) domain.ValidationResult
	SubmitExecution(pipeline *domain.Pipeline) (string, error)
	GetExecutionStatus(executionID string) (*domain.PipelineExecution, error)
	StopExecution(executionID string) error
}
