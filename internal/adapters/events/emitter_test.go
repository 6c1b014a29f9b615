package events

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flowforge/flowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_PublishSubscribe(t *testing.T) {
	emitter := NewEmitter(slog.Default())

	topic := domain.ExecutionTopic("exec-1")
	ch, cancel := emitter.Subscribe(topic)
	defer cancel()

	emitter.Publish(topic, domain.Event{
		Type:        domain.EventPipelineStart,
		ExecutionID: "exec-1",
		Timestamp:   time.Now(),
	})

	select {
	case event := <-ch:
		assert.Equal(t, domain.EventPipelineStart, event.Type)
		assert.Equal(t, "exec-1", event.ExecutionID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestEmitter_TopicIsolation(t *testing.T) {
	emitter := NewEmitter(slog.Default())

	chA, cancelA := emitter.Subscribe("pipeline-a")
	defer cancelA()
	chB, cancelB := emitter.Subscribe("pipeline-b")
	defer cancelB()

	emitter.Publish("pipeline-a", domain.Event{Type: domain.EventNodeStart, ExecutionID: "a"})

	select {
	case event := <-chA:
		assert.Equal(t, "a", event.ExecutionID)
	case <-time.After(time.Second):
		t.Fatal("subscriber on topic a received nothing")
	}

	select {
	case <-chB:
		t.Fatal("subscriber on topic b must not receive topic a events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitter_OrderPreservedPerSubscriber(t *testing.T) {
	emitter := NewEmitter(slog.Default())

	ch, cancel := emitter.Subscribe("pipeline-x")
	defer cancel()

	types := []domain.EventType{
		domain.EventPipelineStart,
		domain.EventNodeStart,
		domain.EventNodeComplete,
		domain.EventPipelineComplete,
	}
	for _, et := range types {
		emitter.Publish("pipeline-x", domain.Event{Type: et})
	}

	for _, want := range types {
		select {
		case got := <-ch:
			assert.Equal(t, want, got.Type)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
}

func TestEmitter_UnsubscribeClosesChannel(t *testing.T) {
	emitter := NewEmitter(slog.Default())

	ch, cancel := emitter.Subscribe("pipeline-y")
	require.Equal(t, 1, emitter.SubscriberCount("pipeline-y"))

	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, emitter.SubscriberCount("pipeline-y"))
}

func TestEmitter_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	emitter := NewEmitter(slog.Default())

	_, cancel := emitter.Subscribe("pipeline-z")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			emitter.Publish("pipeline-z", domain.Event{Type: domain.EventLog})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestEmitter_ConcurrentPublishers(t *testing.T) {
	emitter := NewEmitter(slog.Default())

	ch, cancel := emitter.Subscribe("pipeline-c")
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emitter.Publish("pipeline-c", domain.Event{Type: domain.EventLog})
		}()
	}
	wg.Wait()

	received := 0
	for {
		select {
		case <-ch:
			received++
			if received == 8 {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("received %d of 8 events", received)
		}
	}
}

func TestEmitter_PublishConcurrentWithUnsubscribe(t *testing.T) {
	emitter := NewEmitter(slog.Default())
	topic := domain.ExecutionTopic("exec-race")

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					emitter.Publish(topic, domain.Event{Type: domain.EventLog})
				}
			}
		}()
	}

	// Churn subscriptions while publishes are in flight. A send racing a
	// channel close panics and fails the whole run.
	for i := 0; i < 5000; i++ {
		_, cancel := emitter.Subscribe(topic)
		cancel()
	}

	close(done)
	wg.Wait()

	assert.Equal(t, 0, emitter.SubscriberCount(topic))
}
