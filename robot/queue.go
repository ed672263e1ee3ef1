package robot

import (
	"errors"

	"github.com/google/uuid"
)

var ErrRouteNotFound = errors.New("route not found")

// Enqueue appends a route to the pending queue and lets the scheduler
// run; with an idle connected robot and nothing active the route is
// dispatched immediately.
func (c *Coordinator) Enqueue(start, destination, addedBy string) Route {
	route := Route{
		ID:          uuid.New(),
		Start:       start,
		Destination: destination,
		AddedBy:     addedBy,
	}
	c.mu.Lock()
	route.AddedAt = c.now()
	c.queue = append(c.queue, route)
	dispatched := c.dispatchLocked()
	c.mu.Unlock()

	c.Events.Emit(BusEvent{Type: EventRouteQueued, Payload: RouteChangedEvent{Route: route}})
	c.finishDispatch(dispatched)
	return route
}

// RemoveRoute deletes a pending route, or cancels the active one: the
// robot gets a CANCEL and the active slot is cleared.
func (c *Coordinator) RemoveRoute(id uuid.UUID) error {
	c.mu.Lock()
	for i, r := range c.queue {
		if r.ID == id {
			removed := r
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.mu.Unlock()
			c.Events.Emit(BusEvent{Type: EventRouteRemoved, Payload: RouteChangedEvent{Route: removed}})
			return nil
		}
	}
	if c.active != nil && c.active.ID == id {
		cancelled := *c.active
		c.active = nil
		dispatched := c.dispatchLocked()
		c.mu.Unlock()

		c.Bus.Publish(Cancel{})
		c.Events.Emit(BusEvent{Type: EventRouteCancelled, Payload: RouteChangedEvent{Route: cancelled}})
		c.finishDispatch(dispatched)
		return nil
	}
	c.mu.Unlock()
	return ErrRouteNotFound
}

// Routes returns the pending queue and the active route, both copies.
func (c *Coordinator) Routes() (pending []Route, active *Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending = append([]Route(nil), c.queue...)
	if c.active != nil {
		cp := *c.active
		active = &cp
	}
	return pending, active
}

// OptimizeRoutes reorders the pending queue so that routes chain:
// starting from the robot's known position (or the active route's
// destination), it repeatedly picks the first pending route whose start
// matches the current anchor. When no route matches, the remainder keeps
// its original order. The active route never moves.
func (c *Coordinator) OptimizeRoutes() {
	c.mu.Lock()
	defer c.mu.Unlock()

	anchor := ""
	switch {
	case c.active != nil:
		anchor = c.active.Destination
	case c.telemetry != nil:
		anchor = c.telemetry.CurrentPosition
	}
	c.queue = chainRoutes(c.queue, anchor)
}

func chainRoutes(routes []Route, anchor string) []Route {
	if len(routes) <= 1 {
		return routes
	}
	pending := append([]Route(nil), routes...)
	out := make([]Route, 0, len(routes))
	for len(pending) > 0 {
		idx := -1
		for i, r := range pending {
			if r.Start == anchor {
				idx = i
				break
			}
		}
		if idx < 0 {
			// No continuation; keep the rest in insertion order.
			out = append(out, pending...)
			break
		}
		next := pending[idx]
		pending = append(pending[:idx], pending[idx+1:]...)
		out = append(out, next)
		anchor = next.Destination
	}
	return out
}
