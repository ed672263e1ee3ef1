package www

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"teletable/robot"
)

type SSEEvent struct {
	Event string
	Data  string
}

type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	select {
	case h.stopChan <- struct{}{}:
	default:
	}
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.fanOut(evt)
		case <-keepalive.C:
			h.fanOut(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

func (h *EventHub) fanOut(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// drop if full
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupCoordinatorListeners wires coordination events to SSE broadcasts.
func (h *EventHub) SetupCoordinatorListeners(c *robot.Coordinator) {
	c.Events.SubscribeTypes(func(evt robot.BusEvent) {
		ev := evt.Payload.(robot.TelemetryUpdatedEvent)
		h.Broadcast("telemetry", fmt.Sprintf(`{"driveMode":%q,"position":%q}`, ev.DriveMode, ev.Position))
	}, robot.EventTelemetryUpdated)

	c.Events.SubscribeTypes(func(evt robot.BusEvent) {
		ev := evt.Payload.(robot.RobotRegisteredEvent)
		h.Broadcast("robot-status", fmt.Sprintf(`{"type":"registered","url":%q}`, ev.URL))
	}, robot.EventRobotRegistered)

	c.Events.SubscribeTypes(func(evt robot.BusEvent) {
		h.Broadcast("robot-status", `{"type":"stale"}`)
	}, robot.EventRobotStale)

	c.Events.SubscribeTypes(func(evt robot.BusEvent) {
		ev := evt.Payload.(robot.RobotEventNotice)
		h.Broadcast("robot-event", fmt.Sprintf(`{"event":%q,"timestamp":%q}`, ev.Event, ev.Timestamp.Format(time.RFC3339)))
	}, robot.EventRobotEvent)

	lockUpdate := func(kind string) func(robot.BusEvent) {
		return func(evt robot.BusEvent) {
			ev := evt.Payload.(robot.LockChangedEvent)
			h.Broadcast("lock-update", fmt.Sprintf(`{"type":%q,"holder":%q}`, kind, ev.HolderName))
		}
	}
	c.Events.SubscribeTypes(lockUpdate("acquired"), robot.EventLockAcquired)
	c.Events.SubscribeTypes(lockUpdate("released"), robot.EventLockReleased)
	c.Events.SubscribeTypes(lockUpdate("expired"), robot.EventLockExpired)

	routeUpdate := func(kind string) func(robot.BusEvent) {
		return func(evt robot.BusEvent) {
			ev := evt.Payload.(robot.RouteChangedEvent)
			h.Broadcast("route-update", fmt.Sprintf(`{"type":%q,"id":%q,"start":%q,"destination":%q}`,
				kind, ev.Route.ID, ev.Route.Start, ev.Route.Destination))
		}
	}
	c.Events.SubscribeTypes(routeUpdate("queued"), robot.EventRouteQueued)
	c.Events.SubscribeTypes(routeUpdate("removed"), robot.EventRouteRemoved)
	c.Events.SubscribeTypes(routeUpdate("dispatched"), robot.EventRouteDispatched)
	c.Events.SubscribeTypes(routeUpdate("completed"), robot.EventRouteCompleted)
	c.Events.SubscribeTypes(routeUpdate("cancelled"), robot.EventRouteCancelled)
	c.Events.SubscribeTypes(routeUpdate("preempted"), robot.EventRoutePreempted)
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.AddClient()
	defer h.RemoveClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
