package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flowforge/flowforge/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const writeTimeout = 10 * time.Second

// handleEvents streams an execution's event feed over a websocket until
// the client disconnects or the execution reaches a terminal event. The
// subscription starts at connect time; events emitted earlier are not
// replayed.
func (s *Server) handleEvents(c *gin.Context) {
	executionID := c.Param("id")
	if _, err := s.engine.GetExecutionStatus(executionID); err != nil {
		if domain.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed",
			"execution_id", executionID,
			"error", err.Error())
		return
	}
	defer ws.Close()

	events, unsubscribe := s.emitter.Subscribe(domain.ExecutionTopic(executionID))
	defer unsubscribe()

	s.logger.Debug("event stream opened", "execution_id", executionID)

	// The subscription starts at connect time; if the execution already
	// finished, synthesize the terminal event so the client is not left
	// waiting on a feed that will never produce one.
	if execution, err := s.engine.GetExecutionStatus(executionID); err == nil &&
		execution.Status != domain.ExecutionStatusRunning {
		event := terminalEvent(execution)
		ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		ws.WriteJSON(event)
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Type)))
		return
	}

	// Reads are only used to detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(event); err != nil {
				s.logger.Debug("event stream write failed",
					"execution_id", executionID,
					"error", err.Error())
				return
			}
			if isTerminal(event.Type) {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(event.Type)))
				return
			}
		case <-closed:
			return
		}
	}
}

func isTerminal(t domain.EventType) bool {
	return t == domain.EventPipelineComplete || t == domain.EventPipelineError
}

// terminalEvent reconstructs the terminal event from a finished record.
func terminalEvent(execution *domain.PipelineExecution) domain.Event {
	event := domain.Event{
		Type:        domain.EventPipelineComplete,
		ExecutionID: execution.ID,
		PipelineID:  execution.Pipeline.ID,
		Timestamp:   time.Now(),
	}
	if execution.Status == domain.ExecutionStatusError {
		event.Type = domain.EventPipelineError
		event.Data = map[string]interface{}{"error": execution.Error}
	}
	return event
}
