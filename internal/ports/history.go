package ports

import (
	"github.com/flowforge/flowforge/internal/domain"
)

// HistoryPort persists terminal execution records. The engine only appends
// as executions progress; durable storage design is an external concern.
type HistoryPort interface {
	SaveExecution(execution *domain.PipelineExecution) error
	GetExecution(executionID string) (*domain.PipelineExecution, error)
	ListExecutions(limit int) ([]*domain.PipelineExecution, error)
	Close() error
}
