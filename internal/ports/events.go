package ports

import (
	"github.com/flowforge/flowforge/internal/domain"
)

// EventEmitterPort broadcasts lifecycle and log events to observers of a
// topic. Delivery is best-effort to currently subscribed observers: events
// are dropped for a subscriber whose buffer is full rather than blocking
// the publisher, and emission failures never propagate to publishers.
type EventEmitterPort interface {
	Publish(topic string, event domain.Event)
	Subscribe(topic string) (<-chan domain.Event, func())
}
