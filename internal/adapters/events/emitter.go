package events

import (
	"log/slog"
	"sync"

	"github.com/flowforge/flowforge/internal/domain"
	"github.com/google/uuid"
)

const subscriberBuffer = 64

type subscriber struct {
	id      string
	channel chan domain.Event
}

// Emitter is a topic-keyed publish/subscribe channel. Publishing never
// blocks and never fails: a subscriber that cannot keep up has events
// dropped rather than stalling the publisher.
type Emitter struct {
	mu     sync.RWMutex
	topics map[string][]*subscriber
	logger *slog.Logger
}

func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		topics: make(map[string][]*subscriber),
		logger: logger.With("component", "event-emitter"),
	}
}

// Publish sends to every subscriber of the topic without blocking. The
// read lock is held across the sends; cancel closes channels under the
// write lock, so a send can never race a close.
func (e *Emitter) Publish(topic string, event domain.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.topics[topic] {
		select {
		case sub.channel <- event:
		default:
			e.logger.Warn("dropping event for slow subscriber",
				"topic", topic,
				"subscriber", sub.id,
				"event_type", event.Type)
		}
	}
}

// Subscribe returns a receive channel for the topic and an unsubscribe
// function. The channel is closed on unsubscribe.
func (e *Emitter) Subscribe(topic string) (<-chan domain.Event, func()) {
	sub := &subscriber{
		id:      uuid.New().String(),
		channel: make(chan domain.Event, subscriberBuffer),
	}

	e.mu.Lock()
	e.topics[topic] = append(e.topics[topic], sub)
	e.mu.Unlock()

	e.logger.Debug("subscriber added", "topic", topic, "subscriber", sub.id)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			subs := e.topics[topic]
			for i, s := range subs {
				if s.id == sub.id {
					e.topics[topic] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(e.topics[topic]) == 0 {
				delete(e.topics, topic)
			}
			close(sub.channel)
			e.mu.Unlock()
		})
	}

	return sub.channel, cancel
}

// SubscriberCount reports how many observers a topic currently has.
func (e *Emitter) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.topics[topic])
}
