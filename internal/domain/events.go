package domain

import (
	"time"
)

type EventType string

const (
	EventPipelineStart    EventType = "pipeline-start"
	EventNodeStart        EventType = "node-start"
	EventNodeComplete     EventType = "node-complete"
	EventPipelineComplete EventType = "pipeline-complete"
	EventPipelineError    EventType = "pipeline-error"
	EventLog              EventType = "log"
	EventOutputDisplay    EventType = "output-display"
)

// Event is the envelope broadcast to observers of one execution. Events for
// a single execution are emitted in the exact order the coordinator
// transitions state.
type Event struct {
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"executionId"`
	PipelineID  string                 `json:"pipelineId"`
	NodeID      string                 `json:"nodeId,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// ExecutionTopic is the per-execution pub/sub topic name.
func ExecutionTopic(executionID string) string {
	return "pipeline-" + executionID
}

type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelError LogLevel = "error"
)

func NewLogEvent(executionID, pipelineID, nodeID string, level LogLevel, line string) Event {
	return Event{
		Type:        EventLog,
		ExecutionID: executionID,
		PipelineID:  pipelineID,
		NodeID:      nodeID,
		Data: map[string]interface{}{
			"level":   string(level),
			"message": line,
		},
		Timestamp: time.Now(),
	}
}
