// Package pubsub fans out a build's live log lines to any number of
// subscribers (dashboard websocket connections) without blocking the
// build's own log writer. Modeled on the teacher repo's websocket
// broadcast pattern in internal/api/websocket.go, generalized from one
// Docker-container stream per connection to one topic per build id.
package pubsub

import (
	"sync"

	"github.com/google/uuid"
)

// Message is one published log line.
type Message struct {
	Level     string `json:"level"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

const subscriberBacklog = 64

// Hub holds one topic per build id with subscribers. A topic is torn down
// when its last subscriber leaves, whether or not its build has completed.
type Hub struct {
	mu     sync.Mutex
	topics map[uuid.UUID]*topic
}

type topic struct {
	mu          sync.Mutex
	subscribers map[chan Message]struct{}
}

// NewHub creates an empty fan-out hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[uuid.UUID]*topic)}
}

func (h *Hub) topicFor(buildID uuid.UUID) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[buildID]
	if !ok {
		t = &topic{subscribers: make(map[chan Message]struct{})}
		h.topics[buildID] = t
	}
	return t
}

// Subscribe registers a new subscriber channel for buildID and returns an
// unsubscribe function the caller must invoke when done reading.
func (h *Hub) Subscribe(buildID uuid.UUID) (<-chan Message, func()) {
	t := h.topicFor(buildID)
	ch := make(chan Message, subscriberBacklog)

	t.mu.Lock()
	t.subscribers[ch] = struct{}{}
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		delete(t.subscribers, ch)
		empty := len(t.subscribers) == 0
		t.mu.Unlock()
		close(ch)

		if empty {
			h.mu.Lock()
			if h.topics[buildID] == t {
				delete(h.topics, buildID)
			}
			h.mu.Unlock()
		}
	}
	return ch, unsubscribe
}

// Publish fans msg out to every current subscriber of buildID. A
// subscriber whose channel is full is dropped from this publish rather
// than blocking the writer — slow dashboard connections never back-pressure
// the build itself, and there is no catch-up replay for what they missed.
func (h *Hub) Publish(buildID uuid.UUID, msg Message) {
	h.mu.Lock()
	t, ok := h.topics[buildID]
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.subscribers {
		select {
		case ch <- msg:
		default:
			// slow subscriber: drop this message for it, keep it subscribed.
		}
	}
}

// SubscriberCount reports how many subscribers a build topic currently has,
// used by tests and diagnostics.
func (h *Hub) SubscriberCount(buildID uuid.UUID) int {
	h.mu.Lock()
	t, ok := h.topics[buildID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}
