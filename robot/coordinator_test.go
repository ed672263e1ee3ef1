package robot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"teletable/auth"
)

// --- Fake clock ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- Mock robot client ---

type mockClient struct {
	mu         sync.Mutex
	nodes      []string
	nodesErr   error
	nodesCalls int
	healthCode int
	healthErr  error
}

func (m *mockClient) FetchNodes(_ context.Context, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodesCalls++
	return m.nodes, m.nodesErr
}

func (m *mockClient) Health(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthCode, m.healthErr
}

// --- Test helpers ---

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeClock, *mockClient) {
	t.Helper()
	clk := newFakeClock()
	client := &mockClient{nodes: []string{"A", "B", "C"}, healthCode: 200}
	c := New(Config{
		StaleTimeout:    30 * time.Second,
		LockTTL:         30 * time.Second,
		JanitorInterval: 5 * time.Second,
		Client:          client,
		Now:             clk.now,
	})
	return c, clk, client
}

func idleTelemetry(position string) Telemetry {
	return Telemetry{
		SystemHealth:    HealthOK,
		BatteryLevel:    90,
		DriveMode:       DriveModeIdle,
		CargoStatus:     CargoEmpty,
		CurrentPosition: position,
	}
}

// drainCommands collects everything currently buffered on ch.
func drainCommands(ch <-chan Command) []Command {
	var out []Command
	for {
		select {
		case cmd := <-ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

var (
	adminID    = uuid.New()
	operatorID = uuid.New()
	viewerID   = uuid.New()
)

// --- Scheduler ---

func TestEnqueueDispatchesWhenIdle(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()

	c.RegisterRobot("http://10.0.0.5:8080")
	c.UpdateTelemetry(idleTelemetry("A"))

	r1 := c.Enqueue("A", "B", "alice")
	got := drainCommands(cmds)
	if len(got) != 1 {
		t.Fatalf("commands after first enqueue = %d, want 1", len(got))
	}
	nav, ok := got[0].(Navigate)
	if !ok {
		t.Fatalf("command = %T, want Navigate", got[0])
	}
	if nav.Start != "A" || nav.Destination != "B" {
		t.Errorf("navigate = %s -> %s, want A -> B", nav.Start, nav.Destination)
	}

	// Second route waits: a route is already active.
	r2 := c.Enqueue("B", "C", "alice")
	if got := drainCommands(cmds); len(got) != 0 {
		t.Fatalf("commands after second enqueue = %d, want 0", len(got))
	}

	pending, active := c.Routes()
	if active == nil || active.ID != r1.ID {
		t.Fatalf("active route = %v, want %s", active, r1.ID)
	}
	if len(pending) != 1 || pending[0].ID != r2.ID {
		t.Fatalf("pending = %v, want [%s]", pending, r2.ID)
	}
}

func TestIdleTelemetryCompletesActiveAndDispatchesNext(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()

	c.RegisterRobot("http://10.0.0.5:8080")
	c.UpdateTelemetry(idleTelemetry("A"))
	c.Enqueue("A", "B", "alice")
	r2 := c.Enqueue("B", "C", "alice")
	drainCommands(cmds)

	// Robot navigates, then reports idle at B: route 1 completes and
	// route 2 dispatches in the same ingest.
	busy := idleTelemetry("A")
	busy.DriveMode = DriveModeAuto
	c.UpdateTelemetry(busy)
	c.UpdateTelemetry(idleTelemetry("B"))

	got := drainCommands(cmds)
	if len(got) != 1 {
		t.Fatalf("commands = %d, want 1", len(got))
	}
	nav := got[0].(Navigate)
	if nav.Start != "B" || nav.Destination != "C" {
		t.Errorf("navigate = %s -> %s, want B -> C", nav.Start, nav.Destination)
	}
	_, active := c.Routes()
	if active == nil || active.ID != r2.ID {
		t.Fatalf("active = %v, want %s", active, r2.ID)
	}
}

func TestNoDispatchWithoutTelemetry(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()

	c.Enqueue("A", "B", "alice")
	if got := drainCommands(cmds); len(got) != 0 {
		t.Fatalf("commands = %d, want 0 (no telemetry yet)", len(got))
	}
	pending, active := c.Routes()
	if active != nil || len(pending) != 1 {
		t.Fatalf("pending=%d active=%v, want 1/nil", len(pending), active)
	}
}

func TestLockBlocksDispatchUntilReleased(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()

	c.UpdateTelemetry(idleTelemetry("A"))
	if out := c.AcquireLock(operatorID, "bob", auth.RoleOperator); out.Status != LockAcquired {
		t.Fatalf("acquire = %v, want LockAcquired", out.Status)
	}

	c.Enqueue("A", "B", "alice")
	if got := drainCommands(cmds); len(got) != 0 {
		t.Fatalf("commands while locked = %d, want 0", len(got))
	}

	if out := c.ReleaseLock(operatorID); out.Status != LockReleased {
		t.Fatalf("release = %v, want LockReleased", out.Status)
	}
	got := drainCommands(cmds)
	if len(got) != 1 {
		t.Fatalf("commands after release = %d, want 1", len(got))
	}
	if _, ok := got[0].(Navigate); !ok {
		t.Fatalf("command = %T, want Navigate", got[0])
	}
}

// --- Lock registry ---

func TestLockRenewalExtendsExpiry(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	c.AcquireLock(operatorID, "bob", auth.RoleOperator)
	first := c.Holder().ExpiresAt

	clk.advance(20 * time.Second)
	if out := c.AcquireLock(operatorID, "bob", auth.RoleOperator); out.Status != LockAcquired {
		t.Fatalf("renewal = %v, want LockAcquired", out.Status)
	}
	second := c.Holder().ExpiresAt
	if !second.After(first) {
		t.Errorf("renewed expiry %v not after original %v", second, first)
	}
}

func TestLockExpiresAndJanitorClearsIt(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	c.AcquireLock(operatorID, "bob", auth.RoleOperator)
	clk.advance(31 * time.Second)

	if h := c.Holder(); h != nil {
		t.Fatalf("holder after expiry = %v, want nil", h)
	}
	// A different operator can acquire immediately, janitor or not.
	other := uuid.New()
	if out := c.AcquireLock(other, "carol", auth.RoleOperator); out.Status != LockAcquired {
		t.Fatalf("acquire after expiry = %v, want LockAcquired", out.Status)
	}
	c.ForceRevoke()

	c.AcquireLock(operatorID, "bob", auth.RoleOperator)
	clk.advance(31 * time.Second)
	c.janitorTick()
	c.mu.Lock()
	raw := c.lock
	c.mu.Unlock()
	if raw != nil {
		t.Errorf("janitor left expired lock in place")
	}
}

func TestLockConflictReportsHolder(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	c.AcquireLock(operatorID, "bob", auth.RoleOperator)

	out := c.AcquireLock(uuid.New(), "carol", auth.RoleOperator)
	if out.Status != LockRefusedHeld {
		t.Fatalf("status = %v, want LockRefusedHeld", out.Status)
	}
	if out.HeldBy != "bob" {
		t.Errorf("HeldBy = %q, want bob", out.HeldBy)
	}

	// A viewer probing a held lock learns the holder too.
	out = c.AcquireLock(viewerID, "eve", auth.RoleViewer)
	if out.Status != LockRefusedHeld || out.HeldBy != "bob" {
		t.Errorf("viewer probe = %+v, want RefusedHeld by bob", out)
	}
}

func TestViewerNeverAcquiresLock(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	if out := c.AcquireLock(viewerID, "eve", auth.RoleViewer); out.Status != LockForbidden {
		t.Errorf("status = %v, want LockForbidden", out.Status)
	}
}

func TestOperatorCannotLockDuringActiveRoute(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.UpdateTelemetry(idleTelemetry("A"))
	c.Enqueue("A", "B", "alice")

	if out := c.AcquireLock(operatorID, "bob", auth.RoleOperator); out.Status != LockRefusedActiveRoute {
		t.Errorf("status = %v, want LockRefusedActiveRoute", out.Status)
	}
	// Admins are exempt.
	if out := c.AcquireLock(adminID, "alice", auth.RoleAdmin); out.Status != LockAcquired {
		t.Errorf("admin status = %v, want LockAcquired", out.Status)
	}
}

func TestAdminStealsHeldLock(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.AcquireLock(operatorID, "bob", auth.RoleOperator)

	if out := c.AcquireLock(adminID, "alice", auth.RoleAdmin); out.Status != LockAcquired {
		t.Fatalf("admin acquire = %v, want LockAcquired", out.Status)
	}
	if h := c.Holder(); h == nil || h.HolderID != adminID {
		t.Errorf("holder = %v, want admin", h)
	}
}

func TestReleaseByNonHolder(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.AcquireLock(operatorID, "bob", auth.RoleOperator)
	if out := c.ReleaseLock(uuid.New()); out.Status != LockNotHolder {
		t.Errorf("status = %v, want LockNotHolder", out.Status)
	}
	if c.Holder() == nil {
		t.Errorf("lock vanished after foreign release")
	}
}

// --- Manual-drive relay ---

func TestManualCommandRoleGating(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()
	c.UpdateTelemetry(idleTelemetry("A"))

	// Viewer: everything dropped.
	if c.HandleManualCommand(viewerID, "eve", auth.RoleViewer, Drive{LinearVelocity: 0.5}) {
		t.Errorf("viewer drive accepted")
	}
	// Operator without the lock: dropped.
	if c.HandleManualCommand(operatorID, "bob", auth.RoleOperator, Drive{LinearVelocity: 0.5}) {
		t.Errorf("lockless operator drive accepted")
	}
	// Operator with the lock: relayed.
	c.AcquireLock(operatorID, "bob", auth.RoleOperator)
	if !c.HandleManualCommand(operatorID, "bob", auth.RoleOperator, Drive{LinearVelocity: 0.5}) {
		t.Errorf("locked operator drive dropped")
	}
	// Operator NAVIGATE: admin-only, dropped even with the lock.
	if c.HandleManualCommand(operatorID, "bob", auth.RoleOperator, Navigate{Start: "A", Destination: "B"}) {
		t.Errorf("operator navigate accepted")
	}
	// Off-allow-list command: dropped even for admins.
	if c.HandleManualCommand(adminID, "alice", auth.RoleAdmin, LED{Enabled: true}) {
		t.Errorf("LED accepted on manual session")
	}

	got := drainCommands(cmds)
	if len(got) != 1 {
		t.Fatalf("relayed commands = %d, want 1", len(got))
	}
	if _, ok := got[0].(Drive); !ok {
		t.Errorf("relayed = %T, want Drive", got[0])
	}
}

func TestAdminNavigatePreemptsActiveRoute(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()

	c.UpdateTelemetry(idleTelemetry("A"))
	r1 := c.Enqueue("A", "B", "alice")
	drainCommands(cmds)
	c.AcquireLock(adminID, "alice", auth.RoleAdmin)

	if !c.HandleManualCommand(adminID, "alice", auth.RoleAdmin, Navigate{Start: "A", Destination: "Z"}) {
		t.Fatalf("admin navigate dropped")
	}

	got := drainCommands(cmds)
	if len(got) != 2 {
		t.Fatalf("commands = %d, want 2 (CANCEL then NAVIGATE)", len(got))
	}
	if _, ok := got[0].(Cancel); !ok {
		t.Errorf("first command = %T, want Cancel", got[0])
	}
	nav, ok := got[1].(Navigate)
	if !ok || nav.Destination != "Z" {
		t.Errorf("second command = %v, want Navigate to Z", got[1])
	}

	// Preempted route returns to the head of the queue; lock revoked.
	pending, active := c.Routes()
	if len(pending) != 1 || pending[0].ID != r1.ID {
		t.Fatalf("pending = %v, want preempted route at head", pending)
	}
	if active == nil || active.Destination != "Z" {
		t.Fatalf("active = %v, want admin route to Z", active)
	}
	if c.Holder() != nil {
		t.Errorf("lock survived preemption")
	}

	// Once the admin's route finishes, the preempted route re-dispatches
	// from its original start.
	c.UpdateTelemetry(idleTelemetry("Z"))
	got = drainCommands(cmds)
	if len(got) != 1 {
		t.Fatalf("commands after completion = %d, want 1", len(got))
	}
	redo := got[0].(Navigate)
	if redo.Start != r1.Start || redo.Destination != r1.Destination {
		t.Errorf("re-dispatch = %s -> %s, want %s -> %s", redo.Start, redo.Destination, r1.Start, r1.Destination)
	}
}

func TestAdminNavigateWithoutActiveRoutePassesThrough(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()
	c.UpdateTelemetry(idleTelemetry("A"))

	if !c.HandleManualCommand(adminID, "alice", auth.RoleAdmin, Navigate{Start: "A", Destination: "B"}) {
		t.Fatalf("admin navigate dropped")
	}
	got := drainCommands(cmds)
	if len(got) != 1 {
		t.Fatalf("commands = %d, want 1", len(got))
	}
	if _, ok := got[0].(Navigate); !ok {
		t.Errorf("command = %T, want Navigate", got[0])
	}
	if _, active := c.Routes(); active != nil {
		t.Errorf("pass-through navigate created an active route")
	}
}

// --- Direct route selection ---

func TestSelectRouteRefusedWhileLocked(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()

	c.AcquireLock(operatorID, "bob", auth.RoleOperator)
	if err := c.SelectRoute("A", "B"); err == nil {
		t.Fatalf("select succeeded while locked")
	}
	if got := drainCommands(cmds); len(got) != 0 {
		t.Fatalf("commands = %d, want 0", len(got))
	}

	c.ForceRevoke()
	if err := c.SelectRoute("A", "B"); err != nil {
		t.Fatalf("select after revoke: %v", err)
	}
	got := drainCommands(cmds)
	if len(got) != 1 {
		t.Fatalf("commands = %d, want 1", len(got))
	}
	if _, active := c.Routes(); active != nil {
		t.Errorf("select created an active route")
	}
}

// --- Staleness and the janitor ---

func TestStaleRobotDropsActiveRouteAndURL(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()

	c.RegisterRobot("http://10.0.0.5:8080")
	c.UpdateTelemetry(idleTelemetry("A"))
	c.Nodes(context.Background()) // prime the cache
	c.Enqueue("A", "B", "alice")
	drainCommands(cmds)

	clk.advance(31 * time.Second)
	if c.Connected() {
		t.Fatalf("still connected after staleness window")
	}
	c.janitorTick()

	_, active := c.Routes()
	if active != nil {
		t.Errorf("active route survived staleness")
	}
	snap := c.Snapshot()
	if snap.RobotURL != "" {
		t.Errorf("robot URL survived staleness: %q", snap.RobotURL)
	}
	// Telemetry history and the node cache are kept.
	if snap.Telemetry == nil {
		t.Errorf("telemetry cleared by janitor")
	}
	if nodes := c.Nodes(context.Background()); len(nodes) != 3 {
		t.Errorf("node cache = %v, want 3 cached nodes", nodes)
	}
}

func TestFreshTelemetryReconnects(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	c.UpdateTelemetry(idleTelemetry("A"))
	clk.advance(31 * time.Second)
	if c.Connected() {
		t.Fatalf("connected while stale")
	}
	c.UpdateTelemetry(idleTelemetry("A"))
	if !c.Connected() {
		t.Fatalf("not connected after fresh telemetry")
	}
}

// --- Node cache ---

func TestNodesFetchedOnceAndCached(t *testing.T) {
	c, _, client := newTestCoordinator(t)
	c.RegisterRobot("http://10.0.0.5:8080")

	if nodes := c.Nodes(context.Background()); len(nodes) != 3 {
		t.Fatalf("nodes = %v, want 3", nodes)
	}
	c.Nodes(context.Background())
	if client.nodesCalls != 1 {
		t.Errorf("fetch calls = %d, want 1", client.nodesCalls)
	}
}

func TestNodesUnknownWithoutRobot(t *testing.T) {
	c, _, client := newTestCoordinator(t)
	if nodes := c.Nodes(context.Background()); nodes != nil {
		t.Fatalf("nodes = %v, want nil before registration", nodes)
	}
	if client.nodesCalls != 0 {
		t.Errorf("fetched nodes with no robot URL")
	}
}

func TestNodesFetchFailureNotCached(t *testing.T) {
	c, _, client := newTestCoordinator(t)
	c.RegisterRobot("http://10.0.0.5:8080")
	client.nodesErr = errors.New("connection refused")

	if nodes := c.Nodes(context.Background()); nodes != nil {
		t.Fatalf("nodes = %v, want nil on fetch error", nodes)
	}
	client.nodesErr = nil
	if nodes := c.Nodes(context.Background()); len(nodes) != 3 {
		t.Fatalf("nodes after recovery = %v, want 3", nodes)
	}
}

// --- Reachability check ---

func TestCheckRobot(t *testing.T) {
	c, clk, client := newTestCoordinator(t)

	res := c.CheckRobot(context.Background())
	if res.Connected || res.Message != "No robot URL registered" {
		t.Errorf("no-url check = %+v", res)
	}

	c.RegisterRobot("http://10.0.0.5:8080")
	res = c.CheckRobot(context.Background())
	if res.Connected || res.Message != "Robot telemetry is stale" {
		t.Errorf("stale check = %+v", res)
	}

	c.UpdateTelemetry(idleTelemetry("A"))
	res = c.CheckRobot(context.Background())
	if !res.Connected || res.RobotStatus != 200 {
		t.Errorf("healthy check = %+v", res)
	}

	client.healthCode = 500
	res = c.CheckRobot(context.Background())
	if res.Connected || res.RobotStatus != 500 {
		t.Errorf("unhealthy check = %+v", res)
	}

	clk.advance(31 * time.Second)
	res = c.CheckRobot(context.Background())
	if res.Connected || res.Message != "Robot telemetry is stale" {
		t.Errorf("re-stale check = %+v", res)
	}
}

// --- Route removal ---

func TestRemoveRoute(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	_, cmds := c.Bus.Subscribe()

	c.UpdateTelemetry(idleTelemetry("A"))
	r1 := c.Enqueue("A", "B", "alice")
	r2 := c.Enqueue("B", "C", "alice")
	drainCommands(cmds)

	// r2 is pending: plain removal, no commands.
	if err := c.RemoveRoute(r2.ID); err != nil {
		t.Fatalf("remove pending: %v", err)
	}
	if got := drainCommands(cmds); len(got) != 0 {
		t.Fatalf("commands after pending removal = %d, want 0", len(got))
	}

	// r1 is active: removal cancels it on the robot.
	if err := c.RemoveRoute(r1.ID); err != nil {
		t.Fatalf("remove active: %v", err)
	}
	got := drainCommands(cmds)
	if len(got) != 1 {
		t.Fatalf("commands after active removal = %d, want 1", len(got))
	}
	if _, ok := got[0].(Cancel); !ok {
		t.Errorf("command = %T, want Cancel", got[0])
	}

	if err := c.RemoveRoute(uuid.New()); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("remove unknown = %v, want ErrRouteNotFound", err)
	}
}

// --- Event stream ---

func TestEventsEmittedOnDispatchAndCompletion(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	var mu sync.Mutex
	var seen []EventType
	c.Events.Subscribe(func(e BusEvent) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	c.UpdateTelemetry(idleTelemetry("A"))
	c.Enqueue("A", "B", "alice")
	c.UpdateTelemetry(idleTelemetry("B"))

	mu.Lock()
	defer mu.Unlock()
	want := map[EventType]bool{
		EventTelemetryUpdated: false,
		EventRouteQueued:      false,
		EventRouteDispatched:  false,
		EventRouteCompleted:   false,
	}
	for _, e := range seen {
		if _, ok := want[e]; ok {
			want[e] = true
		}
	}
	for typ, ok := range want {
		if !ok {
			t.Errorf("event %d never emitted", typ)
		}
	}
}
