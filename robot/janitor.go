package robot

import (
	"log"
	"time"
)

// Start launches the janitor, the sole source of time-based transitions.
func (c *Coordinator) Start() {
	go c.janitorLoop()
}

func (c *Coordinator) Stop() {
	select {
	case c.stopChan <- struct{}{}:
	default:
	}
}

func (c *Coordinator) janitorLoop() {
	ticker := time.NewTicker(c.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.janitorTick()
		}
	}
}

// janitorTick clears an expired lock if one is physically present, then
// clears stale-robot artifacts: a phantom active route and the robot URL.
// Historical telemetry and the node cache survive staleness for UI
// continuity. Finally the scheduler gets a chance to run.
func (c *Coordinator) janitorTick() {
	now := c.now()

	c.mu.Lock()
	var expiredHolder string
	if c.lock != nil && !c.lock.ExpiresAt.After(now) {
		expiredHolder = c.lock.HolderName
		c.lock = nil
	}
	var droppedRoute *Route
	urlCleared := false
	if !c.connectedLocked() {
		if c.active != nil {
			droppedRoute = c.active
			c.active = nil
		}
		if c.robotURL != "" {
			c.robotURL = ""
			urlCleared = true
		}
	}
	dispatched := c.dispatchLocked()
	c.mu.Unlock()

	if expiredHolder != "" {
		log.Printf("janitor: cleared expired lock held by %s", expiredHolder)
		c.Events.Emit(BusEvent{Type: EventLockExpired, Payload: LockChangedEvent{HolderName: expiredHolder}})
	}
	if droppedRoute != nil {
		log.Printf("janitor: robot stale, dropped active route %s", droppedRoute.ID)
	}
	if droppedRoute != nil || urlCleared {
		c.Events.Emit(BusEvent{Type: EventRobotStale})
	}
	c.finishDispatch(dispatched)
}
