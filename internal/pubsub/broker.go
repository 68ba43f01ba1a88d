// Package pubsub broadcasts sync lifecycle events to in-process
// subscribers, such as the log follower in the serve command.
package pubsub

import (
	"context"
	"sync"
)

// EventType describes a sync lifecycle transition.
type EventType string

const (
	SyncStarted   EventType = "sync_started"
	SyncProgress  EventType = "sync_progress"
	SyncCompleted EventType = "sync_completed"
	SyncFailed    EventType = "sync_failed"
)

// Event is a snapshot of a sync run at the moment it was published.
type Event struct {
	Type      EventType
	SyncID    string
	Processed int
	Total     int
	Errors    int
	Message   string
}

// subscriberBufferSize is the channel buffer size for each subscriber.
const subscriberBufferSize = 64

// Broker is a thread-safe publish/subscribe broker for sync events.
// Publishing never blocks: a subscriber with a full buffer misses the
// event.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBroker creates a new Broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe creates a new subscription. The returned channel receives
// events until the provided context is cancelled, at which point the
// channel is closed and the subscription removed.
func (b *Broker) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish broadcasts an event to all active subscribers.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Drop event for slow subscriber
		}
	}
}
