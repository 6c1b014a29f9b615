package engine

import (
	"context"
	"sync"

	"github.com/flowforge/flowforge/internal/domain"
)

// Handle owns one in-flight execution record. All reads and writes of the
// record go through the handle so concurrent status lookups never observe
// a torn write.
type Handle struct {
	mu        sync.RWMutex
	execution *domain.PipelineExecution
	cancel    context.CancelFunc
}

func NewHandle(execution *domain.PipelineExecution, cancel context.CancelFunc) *Handle {
	return &Handle{execution: execution, cancel: cancel}
}

// Snapshot returns a copy of the execution record.
func (h *Handle) Snapshot() domain.PipelineExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snapshot := *h.execution
	if h.execution.Results != nil {
		results := make(map[string]interface{}, len(h.execution.Results))
		for k, v := range h.execution.Results {
			results[k] = v
		}
		snapshot.Results = results
	}
	return snapshot
}

func (h *Handle) Mutate(fn func(*domain.PipelineExecution)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.execution)
}

// Cancel signals the execution's context. Safe to call more than once.
func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Handle) Status() domain.ExecutionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.execution.Status
}
