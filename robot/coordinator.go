package robot

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"teletable/auth"
)

// RobotClient is the outbound HTTP surface of the table, satisfied by
// table.Client. Calls may block; the coordinator never holds its state
// lock across them.
type RobotClient interface {
	FetchNodes(ctx context.Context, baseURL string) ([]string, error)
	Health(ctx context.Context, baseURL string) (int, error)
}

type Config struct {
	StaleTimeout    time.Duration
	LockTTL         time.Duration
	JanitorInterval time.Duration
	Client          RobotClient
	// Now overrides the clock; tests use this to drive expiry.
	Now func() time.Time
}

// Coordinator is the robot coordination core: it owns the telemetry
// snapshot, the manual-drive lock, the route queue and the active route,
// all behind one mutex. Mutations never suspend; anything that does I/O
// captures what it needs, releases the lock, then acts.
type Coordinator struct {
	mu sync.Mutex

	now             func() time.Time
	staleTimeout    time.Duration
	lockTTL         time.Duration
	janitorInterval time.Duration
	client          RobotClient

	telemetry   *Telemetry
	lastUpdate  time.Time
	robotURL    string
	cachedNodes []string

	lock   *ManualLock
	queue  []Route
	active *Route

	Bus    *CommandBus
	Events *EventBus

	stopChan chan struct{}
}

func New(cfg Config) *Coordinator {
	c := &Coordinator{
		now:             cfg.Now,
		staleTimeout:    cfg.StaleTimeout,
		lockTTL:         cfg.LockTTL,
		janitorInterval: cfg.JanitorInterval,
		client:          cfg.Client,
		Bus:             NewCommandBus(),
		Events:          NewEventBus(),
		stopChan:        make(chan struct{}),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.staleTimeout == 0 {
		c.staleTimeout = 30 * time.Second
	}
	if c.lockTTL == 0 {
		c.lockTTL = 30 * time.Second
	}
	if c.janitorInterval == 0 {
		c.janitorInterval = 5 * time.Second
	}
	return c
}

// --- Telemetry store ---

// UpdateTelemetry replaces the telemetry snapshot. A report of IDLE while
// a route is active is the route-completion signal: the active slot is
// cleared before the scheduler runs.
func (c *Coordinator) UpdateTelemetry(t Telemetry) {
	c.mu.Lock()
	c.telemetry = &t
	c.lastUpdate = c.now()

	var completed *Route
	if c.active != nil && t.DriveMode == DriveModeIdle {
		completed = c.active
		c.active = nil
	}
	dispatched := c.dispatchLocked()
	c.mu.Unlock()

	c.Events.Emit(BusEvent{Type: EventTelemetryUpdated, Payload: TelemetryUpdatedEvent{
		DriveMode: t.DriveMode, Position: t.CurrentPosition,
	}})
	if completed != nil {
		log.Printf("coordinator: route %s completed (%s -> %s)", completed.ID, completed.Start, completed.Destination)
		c.Events.Emit(BusEvent{Type: EventRouteCompleted, Payload: RouteChangedEvent{Route: *completed}})
	}
	c.finishDispatch(dispatched)
}

// RegisterRobot records the robot's base URL. Re-announcements of the
// same URL are ignored.
func (c *Coordinator) RegisterRobot(url string) {
	c.mu.Lock()
	changed := c.robotURL != url
	c.robotURL = url
	c.mu.Unlock()

	if changed {
		log.Printf("coordinator: registered robot at %s", url)
		c.Events.Emit(BusEvent{Type: EventRobotRegistered, Payload: RobotRegisteredEvent{URL: url}})
	}
}

// NotifyEvent records an out-of-band robot event and fans it out to
// event stream subscribers.
func (c *Coordinator) NotifyEvent(e Event) {
	log.Printf("coordinator: robot event %q at %s", e.Event, e.Timestamp.Format(time.RFC3339))
	c.Events.Emit(BusEvent{Type: EventRobotEvent, Payload: RobotEventNotice{
		Event: e.Event, Timestamp: e.Timestamp,
	}})
}

// Snapshot is the read side for the status endpoint.
type Snapshot struct {
	Telemetry  *Telemetry
	LastUpdate time.Time
	RobotURL   string
	// LockHolder is the holder name of the active lock, empty otherwise.
	// Expired locks are invisible here.
	LockHolder string
	Connected  bool
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		LastUpdate: c.lastUpdate,
		RobotURL:   c.robotURL,
		Connected:  c.connectedLocked(),
	}
	if c.telemetry != nil {
		t := *c.telemetry
		s.Telemetry = &t
	}
	if l := c.lockActiveLocked(); l != nil {
		s.LockHolder = l.HolderName
	}
	return s
}

// Connected reports whether telemetry arrived within the staleness window.
func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *Coordinator) connectedLocked() bool {
	return !c.lastUpdate.IsZero() && c.now().Sub(c.lastUpdate) < c.staleTimeout
}

// Nodes returns the node list, fetching it from the robot once and
// caching the first successful result until restart. Returns nil when
// the list is unknown.
func (c *Coordinator) Nodes(ctx context.Context) []string {
	c.mu.Lock()
	if c.cachedNodes != nil {
		nodes := append([]string(nil), c.cachedNodes...)
		c.mu.Unlock()
		return nodes
	}
	url := c.robotURL
	c.mu.Unlock()

	if url == "" || c.client == nil {
		return nil
	}
	nodes, err := c.client.FetchNodes(ctx, url)
	if err != nil {
		log.Printf("coordinator: fetch nodes: %v", err)
		return nil
	}

	c.mu.Lock()
	if c.cachedNodes == nil {
		c.cachedNodes = nodes
	}
	nodes = append([]string(nil), c.cachedNodes...)
	c.mu.Unlock()
	return nodes
}

// CheckResult is the reachability report for GET /robot/check.
type CheckResult struct {
	Connected   bool
	URL         string
	RobotStatus int
	Message     string
}

// CheckRobot probes the robot's health endpoint, unless telemetry is
// already stale, in which case it reports disconnected without probing.
func (c *Coordinator) CheckRobot(ctx context.Context) CheckResult {
	c.mu.Lock()
	url := c.robotURL
	stale := !c.connectedLocked()
	c.mu.Unlock()

	if url == "" {
		return CheckResult{Message: "No robot URL registered"}
	}
	if stale {
		return CheckResult{URL: url, Message: "Robot telemetry is stale"}
	}
	if c.client == nil {
		return CheckResult{URL: url, Message: "No robot client configured"}
	}
	code, err := c.client.Health(ctx, url)
	if err != nil {
		return CheckResult{URL: url, Message: "Failed to reach robot: " + err.Error()}
	}
	return CheckResult{
		Connected:   code >= 200 && code < 300,
		URL:         url,
		RobotStatus: code,
	}
}

// --- Scheduler ---

// dispatchLocked evaluates the dispatch predicate and, when it holds,
// moves the queue head into the active slot. The caller publishes the
// NAVIGATE for the returned route after releasing the state lock, so the
// command hits the bus strictly after the route is active.
func (c *Coordinator) dispatchLocked() *Route {
	if c.lockActiveLocked() != nil {
		return nil
	}
	if !c.connectedLocked() {
		return nil
	}
	if c.telemetry == nil || c.telemetry.DriveMode != DriveModeIdle {
		return nil
	}
	if c.active != nil || len(c.queue) == 0 {
		return nil
	}
	r := c.queue[0]
	c.queue = c.queue[1:]
	c.active = &r
	c.checkQueueInvariantLocked()
	return &r
}

func (c *Coordinator) finishDispatch(r *Route) {
	if r == nil {
		return
	}
	c.Bus.Publish(Navigate{Start: r.Start, Destination: r.Destination})
	log.Printf("coordinator: dispatched route %s (%s -> %s)", r.ID, r.Start, r.Destination)
	c.Events.Emit(BusEvent{Type: EventRouteDispatched, Payload: RouteChangedEvent{Route: *r}})
}

// checkQueueInvariantLocked aborts on the one state that indicates a
// concurrency bug rather than bad input: the active route also queued.
func (c *Coordinator) checkQueueInvariantLocked() {
	if c.active == nil {
		return
	}
	for _, r := range c.queue {
		if r.ID == c.active.ID {
			log.Panicf("coordinator: invariant violation: active route %s present in pending queue", c.active.ID)
		}
	}
}

// HandleManualCommand applies the per-frame relay rules: allow-list,
// admission policy, admin preemption, then publish. Returns false when
// the command was dropped; the session stays open either way.
func (c *Coordinator) HandleManualCommand(userID uuid.UUID, userName string, role auth.Role, cmd Command) bool {
	if !onManualAllowList(cmd.Type()) {
		return false
	}

	c.mu.Lock()
	holds := false
	if l := c.lockActiveLocked(); l != nil && l.HolderID == userID {
		holds = true
	}
	st := PolicyState{ActiveRoute: c.active != nil, HoldsLock: holds}
	if !Allowed(role, manualOp(cmd.Type()), st) {
		c.mu.Unlock()
		return false
	}

	// Admin NAVIGATE while a route is executing preempts it: the lock is
	// revoked, the current route returns to the head of the queue, and
	// the admin's route becomes active.
	if nav, ok := cmd.(Navigate); ok && role.IsAdmin() && c.active != nil {
		preempted := *c.active
		lockRevoked := c.lock != nil
		c.lock = nil
		c.queue = append([]Route{preempted}, c.queue...)
		newActive := Route{
			ID:          uuid.New(),
			Start:       nav.Start,
			Destination: nav.Destination,
			AddedAt:     c.now(),
			AddedBy:     userName,
		}
		c.active = &newActive
		c.checkQueueInvariantLocked()
		c.mu.Unlock()

		c.Bus.Publish(Cancel{})
		c.Bus.Publish(nav)
		log.Printf("coordinator: admin %s preempted route %s with %s -> %s", userName, preempted.ID, nav.Start, nav.Destination)
		if lockRevoked {
			c.Events.Emit(BusEvent{Type: EventLockReleased, Payload: LockChangedEvent{}})
		}
		c.Events.Emit(BusEvent{Type: EventRoutePreempted, Payload: RouteChangedEvent{Route: preempted}})
		c.Events.Emit(BusEvent{Type: EventRouteDispatched, Payload: RouteChangedEvent{Route: newActive}})
		return true
	}
	c.mu.Unlock()

	c.Bus.Publish(cmd)
	return true
}

// ErrManuallyLocked refuses direct navigation while a manual lock is active.
type lockedError struct{ holder string }

func (e lockedError) Error() string { return "Robot is manually locked" }

// SelectRoute publishes a direct NAVIGATE unless a manual lock is active.
// It does not touch the queue or the active slot; only the scheduler
// mutates those.
func (c *Coordinator) SelectRoute(start, destination string) error {
	c.mu.Lock()
	if l := c.lockActiveLocked(); l != nil {
		c.mu.Unlock()
		return lockedError{holder: l.HolderName}
	}
	c.mu.Unlock()

	c.Bus.Publish(Navigate{Start: start, Destination: destination})
	return nil
}
