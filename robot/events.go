package robot

import (
	"sync"
	"time"
)

type EventType int

const (
	EventTelemetryUpdated EventType = iota + 1
	EventRobotRegistered
	EventRobotStale
	EventRobotEvent
	EventLockAcquired
	EventLockReleased
	EventLockExpired
	EventRouteQueued
	EventRouteRemoved
	EventRouteDispatched
	EventRouteCompleted
	EventRouteCancelled
	EventRoutePreempted
)

// --- Bus event payloads ---

type TelemetryUpdatedEvent struct {
	DriveMode string
	Position  string
}

type RobotRegisteredEvent struct {
	URL string
}

type LockChangedEvent struct {
	HolderName string
}

type RouteChangedEvent struct {
	Route Route
}

type RobotEventNotice struct {
	Event     string
	Timestamp time.Time
}

type BusEvent struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

type listener struct {
	id     SubscriberID
	fn     func(BusEvent)
	filter map[EventType]struct{}
}

// EventBus delivers coordination events synchronously to registered
// handlers. Handlers must not block; anything slow belongs behind a
// buffered channel on the handler's side (the SSE hub does this).
type EventBus struct {
	mu        sync.RWMutex
	listeners []listener
	nextID    SubscriberID
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a handler for all event types.
func (eb *EventBus) Subscribe(fn func(BusEvent)) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.listeners = append(eb.listeners, listener{id: eb.nextID, fn: fn})
	return eb.nextID
}

// SubscribeTypes registers a handler for specific event types.
func (eb *EventBus) SubscribeTypes(fn func(BusEvent), types ...EventType) SubscriberID {
	filter := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.listeners = append(eb.listeners, listener{id: eb.nextID, fn: fn, filter: filter})
	return eb.nextID
}

// Unsubscribe removes a handler by ID.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, l := range eb.listeners {
		if l.id == id {
			eb.listeners = append(eb.listeners[:i], eb.listeners[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all matching handlers.
func (eb *EventBus) Emit(evt BusEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	ls := make([]listener, len(eb.listeners))
	copy(ls, eb.listeners)
	eb.mu.RUnlock()

	for _, l := range ls {
		if l.filter != nil {
			if _, ok := l.filter[evt.Type]; !ok {
				continue
			}
		}
		l.fn(evt)
	}
}
