package events

import (
	"sync"
	"time"

	"finqueue/internal/models"
)

// Type enumerates the closed set of queue and sync lifecycle events.
type Type string

const (
	TypeQueued       Type = "queued"
	TypeSynced       Type = "synced"
	TypeDeleted      Type = "deleted"
	TypeSyncStart    Type = "sync-start"
	TypeSyncComplete Type = "sync-complete"
	TypeSyncError    Type = "sync-error"
	TypeSyncFailed   Type = "sync-failed"
	TypeOnline       Type = "online"
	TypeOffline      Type = "offline"
)

// Event is one lifecycle notification. Which fields are set depends on the
// type: Entry for queued/synced/sync-failed, EntryID for deleted, Err for
// sync-failed/sync-error, Synced for sync-complete.
type Event struct {
	Type    Type
	Entry   *models.QueueEntry
	EntryID int64
	Err     string
	Synced  int
	At      time.Time
}

// Handler reacts to an event. Handlers run synchronously on the
// publisher's goroutine.
type Handler func(Event)

// Bus provides in-process pub/sub for queue lifecycle events. Every
// subscriber sees every event, in registration order.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	order    []int
	handlers map[int]Handler
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe function.
// The same handler may be registered more than once; each registration is
// независимая подписка.
func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish notifies every subscriber. A panicking handler never prevents the
// remaining handlers from running and never reaches the publisher.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		invoke(handler, event)
	}
}

func invoke(handler Handler, event Event) {
	defer func() {
		// Подписчик не должен ронять издателя
		_ = recover()
	}()
	handler(event)
}
