package api

import (
	"sync"
	"time"
)

// EventType categorizes warm-run events.
type EventType string

const (
	EventWarmStarted   EventType = "warm_started"
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStatusChanged EventType = "status_changed"
	EventLogLine       EventType = "log_line"
	EventWarmFinished  EventType = "warm_finished"
	EventError         EventType = "error"
)

// Event is a single observation from the warm run.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event of the given type.
func NewEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      make(map[string]any),
	}
}

// WithData adds a data field to the event.
func (e Event) WithData(key string, value any) Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// Hub fans warm-run events out to SSE subscribers, keeping bounded history
// for late joiners.
type Hub struct {
	mu sync.Mutex

	subscribers map[chan Event]bool
	history     []Event
	maxHistory  int
}

// NewHub creates an event hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan Event]bool),
		maxHistory:  1000,
	}
}

// Emit sends an event to all subscribers. Sends never block; a subscriber
// that cannot keep up misses events rather than stalling the warm run.
func (h *Hub) Emit(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, event)
	if len(h.history) > h.maxHistory {
		h.history = h.history[1:]
	}

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel receiving future events.
func (h *Hub) Subscribe() <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 100)
	h.subscribers[ch] = true
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sendCh := range h.subscribers {
		if sendCh == ch {
			close(sendCh)
			delete(h.subscribers, sendCh)
			break
		}
	}
}

// History returns a copy of the retained events.
func (h *Hub) History() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

// Close closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}
