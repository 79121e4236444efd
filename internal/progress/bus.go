// Package progress is the single-process broadcast channel joining the
// Scheduler's workers to subscribed observers (the websocket handler,
// chiefly): a subscriber registry guarded by a mutex, non-blocking
// per-subscriber dispatch with a bounded buffer so one slow reader
// can't stall the rest.
package progress

import (
	"sync"
	"time"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
	EventNewTask  EventType = "new_task"
)

// Event is one message on the bus. Data is left as a bare map so each
// event type can carry its own fields without a struct per event.
type Event struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

const subscriberBuffer = 64

// Bus is a broadcast publish/subscribe channel: every subscriber sees
// every event, in publish order, best-effort; a slow subscriber drops
// events rather than stalling the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]bool
}

func New() *Bus {
	return &Bus{subscribers: make(map[chan Event]bool)}
}

// Subscribe registers a new receiver with a bounded buffer. Call
// Unsubscribe with the returned channel when the observer disconnects.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = true
	b.mu.Unlock()
	return ch
}

// Unsubscribe deregisters ch and closes it.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if b.subscribers[ch] {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish dispatches an event to every current subscriber without
// blocking on any one of them.
func (b *Bus) Publish(evt Event) {
	evt.Timestamp = time.Now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// slow subscriber: drop the event rather than block the publisher
		}
	}
}

func (b *Bus) PublishProgress(taskID int64, pct int) {
	b.Publish(Event{Type: EventProgress, Data: map[string]interface{}{"task_id": taskID, "progress": pct}})
}

func (b *Bus) PublishStatus(taskID int64, status string) {
	b.Publish(Event{Type: EventStatus, Data: map[string]interface{}{"task_id": taskID, "status": status}})
}

func (b *Bus) PublishNewTask(taskID int64) {
	b.Publish(Event{Type: EventNewTask, Data: map[string]interface{}{"task_id": taskID}})
}
