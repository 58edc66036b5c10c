// Package events provides a broadcaster for drive state-change events.
// Consumers holding state derived from the current folder (selection,
// open document, move pickers) subscribe to learn when it goes stale.
package events

import (
	"sync"
	"time"

	"github.com/paperdrive/paperdrive/internal/metrics"
)

const (
	EventFolderChanged    = "folder_changed"
	EventNodeMoved        = "node_moved"
	EventNodeRenamed      = "node_renamed"
	EventNodeDeleted      = "node_deleted"
	EventFavoritesChanged = "favorites_changed"
)

// Event describes one drive state change.
type Event struct {
	Type      string `json:"type"`
	NodeID    string `json:"node_id,omitempty"`
	FolderID  string `json:"folder_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcaster manages subscribers and publishes events to them.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetEventSubscribers(b.Count())
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
	metrics.SetEventSubscribers(b.Count())
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
