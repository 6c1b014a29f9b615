package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flowforge/flowforge/internal/adapters/events"
	"github.com/flowforge/flowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor returns canned outputs (or errors) per node id and
// records what it was invoked with.
type scriptedExecutor struct {
	mu      sync.Mutex
	outputs map[string]domain.NodeOutputs
	errs    map[string]error
	calls   []string
	inputs  map[string]domain.NodeInputs
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		outputs: map[string]domain.NodeOutputs{},
		errs:    map[string]error{},
		inputs:  map[string]domain.NodeInputs{},
	}
}

func (s *scriptedExecutor) ExecuteNode(_ context.Context, _ *domain.PipelineExecution, node domain.PipelineNode, inputs domain.NodeInputs) (domain.NodeOutputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, node.ID)
	s.inputs[node.ID] = inputs
	if err := s.errs[node.ID]; err != nil {
		return nil, err
	}
	if out, ok := s.outputs[node.ID]; ok {
		return out, nil
	}
	return domain.NodeOutputs{"data": node.ID}, nil
}

func linearPipeline(ids ...string) domain.Pipeline {
	p := domain.Pipeline{ID: "pipe-1", Name: "test"}
	for _, id := range ids {
		p.Nodes = append(p.Nodes, domain.PipelineNode{ID: id, Type: domain.NodeTypeProcessing})
	}
	for i := 1; i < len(ids); i++ {
		p.Connections = append(p.Connections, domain.Connection{
			ID: "e" + ids[i], Source: ids[i-1], Target: ids[i],
		})
	}
	return p
}

func newRun(pipeline domain.Pipeline) (*Handle, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	execution := &domain.PipelineExecution{
		ID:        "exec-1",
		Pipeline:  pipeline,
		Status:    domain.ExecutionStatusRunning,
		StartedAt: time.Now(),
	}
	return NewHandle(execution, cancel), ctx, cancel
}

func collectEvents(t *testing.T, ch <-chan domain.Event, n int) []domain.Event {
	t.Helper()
	var got []domain.Event
	for len(got) < n {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d events", len(got), n)
		}
	}
	return got
}

func TestExecute_EventOrderAndCompletion(t *testing.T) {
	emitter := events.NewEmitter(slog.Default())
	executor := newScriptedExecutor()
	c := NewCoordinator(executor, emitter, slog.Default())

	pipeline := linearPipeline("input-1", "process-1", "output-1")
	handle, ctx, cancel := newRun(pipeline)
	defer cancel()

	ch, unsub := emitter.Subscribe(domain.ExecutionTopic("exec-1"))
	defer unsub()

	var terminal domain.PipelineExecution
	c.Execute(ctx, handle, []string{"input-1", "process-1", "output-1"}, func(e domain.PipelineExecution) {
		terminal = e
	})

	got := collectEvents(t, ch, 8)
	wantTypes := []domain.EventType{
		domain.EventPipelineStart,
		domain.EventNodeStart, domain.EventNodeComplete,
		domain.EventNodeStart, domain.EventNodeComplete,
		domain.EventNodeStart, domain.EventNodeComplete,
		domain.EventPipelineComplete,
	}
	for i, want := range wantTypes {
		assert.Equal(t, want, got[i].Type, "event %d", i)
	}
	assert.Equal(t, "input-1", got[1].NodeID)
	assert.Equal(t, "process-1", got[3].NodeID)
	assert.Equal(t, "output-1", got[5].NodeID)

	assert.Equal(t, domain.ExecutionStatusCompleted, terminal.Status)
	assert.Equal(t, 100.0, terminal.Progress)
	require.NotNil(t, terminal.CompletedAt)
}

func TestExecute_ProgressPerNode(t *testing.T) {
	emitter := events.NewEmitter(slog.Default())
	c := NewCoordinator(newScriptedExecutor(), emitter, slog.Default())

	pipeline := linearPipeline("a", "b")
	handle, ctx, cancel := newRun(pipeline)
	defer cancel()

	ch, unsub := emitter.Subscribe(domain.ExecutionTopic("exec-1"))
	defer unsub()

	c.Execute(ctx, handle, []string{"a", "b"}, nil)

	got := collectEvents(t, ch, 6)
	assert.Equal(t, 50.0, got[2].Data["progress"])
	assert.Equal(t, 100.0, got[4].Data["progress"])
}

func TestExecute_FailureAbortsRemainingNodes(t *testing.T) {
	emitter := events.NewEmitter(slog.Default())
	executor := newScriptedExecutor()
	executor.errs["b"] = errors.New("node b exploded")
	c := NewCoordinator(executor, emitter, slog.Default())

	pipeline := linearPipeline("a", "b", "c")
	handle, ctx, cancel := newRun(pipeline)
	defer cancel()

	ch, unsub := emitter.Subscribe(domain.ExecutionTopic("exec-1"))
	defer unsub()

	c.Execute(ctx, handle, []string{"a", "b", "c"}, nil)

	// pipeline-start, node-start(a), node-complete(a), node-start(b), pipeline-error
	got := collectEvents(t, ch, 5)
	assert.Equal(t, domain.EventPipelineError, got[4].Type)
	assert.Equal(t, "node b exploded", got[4].Data["error"])

	assert.NotContains(t, executor.calls, "c", "nodes after the failure must not run")

	snapshot := handle.Snapshot()
	assert.Equal(t, domain.ExecutionStatusError, snapshot.Status)
	assert.Equal(t, "node b exploded", snapshot.Error)
	require.NotNil(t, snapshot.CompletedAt)
}

func TestExecute_UpstreamOutputsReachDependents(t *testing.T) {
	emitter := events.NewEmitter(slog.Default())
	executor := newScriptedExecutor()
	executor.outputs["a"] = domain.NodeOutputs{"data": "from-a"}
	c := NewCoordinator(executor, emitter, slog.Default())

	pipeline := linearPipeline("a", "b")
	handle, ctx, cancel := newRun(pipeline)
	defer cancel()

	c.Execute(ctx, handle, []string{"a", "b"}, nil)

	inputs := executor.inputs["b"]
	require.Contains(t, inputs, domain.DefaultHandle)
	assert.Equal(t, "from-a", inputs[domain.DefaultHandle]["data"])
}

func TestExecute_ConditionBranchRouting(t *testing.T) {
	emitter := events.NewEmitter(slog.Default())
	executor := newScriptedExecutor()
	executor.outputs["cond"] = domain.NodeOutputs{"condition": true, "data": "payload"}
	c := NewCoordinator(executor, emitter, slog.Default())

	pipeline := domain.Pipeline{
		ID: "branching",
		Nodes: []domain.PipelineNode{
			{ID: "cond", Type: domain.NodeTypeCondition},
			{ID: "yes", Type: domain.NodeTypeProcessing},
			{ID: "no", Type: domain.NodeTypeProcessing},
		},
		Connections: []domain.Connection{
			{ID: "e1", Source: "cond", Target: "yes", SourceHandle: "true"},
			{ID: "e2", Source: "cond", Target: "no", SourceHandle: "false"},
		},
	}
	handle, ctx, cancel := newRun(pipeline)
	defer cancel()

	c.Execute(ctx, handle, []string{"cond", "yes", "no"}, nil)

	// Both branches execute; topological order does not prune unreached
	// branches. Only the matching branch receives the condition's outputs.
	assert.Contains(t, executor.calls, "no")
	yesInputs := executor.inputs["yes"]
	require.Contains(t, yesInputs, "true")
	assert.Equal(t, "payload", yesInputs["true"]["data"])
	assert.Empty(t, executor.inputs["no"], "false branch bag stays empty when condition is true")
}

func TestExecute_LastWriteWinsOnSharedHandle(t *testing.T) {
	emitter := events.NewEmitter(slog.Default())
	executor := newScriptedExecutor()
	executor.outputs["a"] = domain.NodeOutputs{"data": "first"}
	executor.outputs["b"] = domain.NodeOutputs{"data": "second"}
	c := NewCoordinator(executor, emitter, slog.Default())

	pipeline := domain.Pipeline{
		ID: "fan-in",
		Nodes: []domain.PipelineNode{
			{ID: "a", Type: domain.NodeTypeInput},
			{ID: "b", Type: domain.NodeTypeInput},
			{ID: "sink", Type: domain.NodeTypeProcessing},
		},
		Connections: []domain.Connection{
			{ID: "e1", Source: "a", Target: "sink"},
			{ID: "e2", Source: "b", Target: "sink"},
		},
	}
	handle, ctx, cancel := newRun(pipeline)
	defer cancel()

	c.Execute(ctx, handle, []string{"a", "b", "sink"}, nil)

	inputs := executor.inputs["sink"]
	assert.Equal(t, "second", inputs[domain.DefaultHandle]["data"])
}

func TestExecute_CancellationStopsAtNodeBoundary(t *testing.T) {
	emitter := events.NewEmitter(slog.Default())
	executor := newScriptedExecutor()
	c := NewCoordinator(executor, emitter, slog.Default())

	pipeline := linearPipeline("a", "b")
	handle, ctx, cancel := newRun(pipeline)
	cancel()

	c.Execute(ctx, handle, []string{"a", "b"}, nil)

	assert.Empty(t, executor.calls)
	snapshot := handle.Snapshot()
	assert.Equal(t, domain.ExecutionStatusError, snapshot.Status)
	assert.Equal(t, "execution cancelled", snapshot.Error)
}
