// Package ingest feeds jobs into the pipeline: HTTP uploads land here
// via the API, a drop-directory watcher picks up audio files, and an
// optional MQTT subscriber accepts remote submissions. It also owns the
// SSE event bus that fans pipeline progress out to API subscribers.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snarg/dt-engine/internal/api"
	"github.com/snarg/dt-engine/internal/metrics"
)

// EventBus provides pub-sub event distribution for SSE subscribers.
// It maintains a ring buffer for replay on reconnect.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	// Ring buffer for replay
	ring     []api.SSEEvent
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan api.SSEEvent
	filter api.EventFilter
}

// NewEventBus creates an event bus with the given ring buffer size.
func NewEventBus(ringSize int) *EventBus {
	return &EventBus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]api.SSEEvent, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a new subscriber and returns a channel and cancel function.
func (eb *EventBus) Subscribe(filter api.EventFilter) (<-chan api.SSEEvent, func()) {
	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	ch := make(chan api.SSEEvent, 64)
	eb.subscribers[id] = subscriber{ch: ch, filter: filter}
	eb.mu.Unlock()

	cancel := func() {
		eb.mu.Lock()
		delete(eb.subscribers, id)
		eb.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of active SSE subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// ReplaySince returns buffered events since the given event ID. If the
// ID has already been overwritten by ring wrap, all available events are
// returned so the client doesn't silently miss everything.
func (eb *EventBus) ReplaySince(lastEventID string, filter api.EventFilter) []api.SSEEvent {
	eb.ringMu.RLock()
	defer eb.ringMu.RUnlock()

	collect := func(skipUntilFound bool) []api.SSEEvent {
		var events []api.SSEEvent
		found := !skipUntilFound
		for i := 0; i < eb.ringSize; i++ {
			idx := (eb.ringHead + i) % eb.ringSize
			e := eb.ring[idx]
			if e.ID == "" {
				continue
			}
			if !found {
				if e.ID == lastEventID {
					found = true
				}
				continue
			}
			if matchesFilter(e, filter) {
				events = append(events, e)
			}
		}
		if skipUntilFound && !found {
			return nil
		}
		return events
	}

	if lastEventID == "" {
		return collect(false)
	}
	if events := collect(true); events != nil || eb.idInRing(lastEventID) {
		return events
	}
	return collect(false)
}

func (eb *EventBus) idInRing(id string) bool {
	for i := 0; i < eb.ringSize; i++ {
		if eb.ring[i].ID == id {
			return true
		}
	}
	return false
}

// EventData holds all fields needed to publish an SSE event.
type EventData struct {
	Type    string
	JobID   int64
	Payload any
}

// Publish sends an event to all matching subscribers and adds it to the ring buffer.
func (eb *EventBus) Publish(e EventData) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return
	}

	seq := eb.seq.Add(1)
	event := api.SSEEvent{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixMilli(), seq),
		Type:      e.Type,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		JobID:     e.JobID,
		Data:      data,
	}

	// Add to ring buffer
	eb.ringMu.Lock()
	eb.ring[eb.ringHead] = event
	eb.ringHead = (eb.ringHead + 1) % eb.ringSize
	eb.ringMu.Unlock()

	metrics.SSEEventsPublishedTotal.Inc()

	// Distribute to subscribers
	eb.mu.RLock()
	for _, sub := range eb.subscribers {
		if matchesFilter(event, sub.filter) {
			select {
			case sub.ch <- event:
			default:
				// Drop if subscriber is slow
			}
		}
	}
	eb.mu.RUnlock()
}

func matchesFilter(e api.SSEEvent, f api.EventFilter) bool {
	if len(f.Types) > 0 {
		match := false
		for _, t := range f.Types {
			if strings.TrimSpace(t) == e.Type {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if len(f.Jobs) > 0 && e.JobID != 0 {
		match := false
		for _, j := range f.Jobs {
			if j == e.JobID {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}
