package robot

import (
	"github.com/google/uuid"

	"teletable/auth"
)

type LockStatus int

const (
	LockAcquired LockStatus = iota + 1
	// LockRefusedHeld: another user holds an active lock.
	LockRefusedHeld
	// LockRefusedActiveRoute: operators may not lock while a route runs.
	LockRefusedActiveRoute
	// LockForbidden: the role may never acquire the lock.
	LockForbidden
	LockReleased
	LockNotHolder
)

type LockOutcome struct {
	Status LockStatus
	// HeldBy names the current holder for LockRefusedHeld.
	HeldBy string
}

// AcquireLock installs or renews the manual-drive lock. The conflict
// check runs before the role check so that a viewer probing a held lock
// learns who holds it rather than getting a bare refusal. Admins revoke
// any existing lock; acquiring as the current holder renews the TTL.
func (c *Coordinator) AcquireLock(userID uuid.UUID, userName string, role auth.Role) LockOutcome {
	c.mu.Lock()
	now := c.now()

	if l := c.lockActiveLocked(); l != nil && l.HolderID != userID && !role.IsAdmin() {
		held := l.HolderName
		c.mu.Unlock()
		return LockOutcome{Status: LockRefusedHeld, HeldBy: held}
	}
	if !Allowed(role, OpAcquireLock, PolicyState{ActiveRoute: c.active != nil}) {
		status := LockForbidden
		if role == auth.RoleOperator {
			status = LockRefusedActiveRoute
		}
		c.mu.Unlock()
		return LockOutcome{Status: status}
	}

	c.lock = &ManualLock{
		HolderID:   userID,
		HolderName: userName,
		HolderRole: role,
		AcquiredAt: now,
		ExpiresAt:  now.Add(c.lockTTL),
	}
	c.mu.Unlock()

	c.Events.Emit(BusEvent{Type: EventLockAcquired, Payload: LockChangedEvent{HolderName: userName}})
	return LockOutcome{Status: LockAcquired}
}

// ReleaseLock clears the lock if the caller holds it. Expired locks are
// invisible, so releasing one reports NotHolder.
func (c *Coordinator) ReleaseLock(userID uuid.UUID) LockOutcome {
	c.mu.Lock()
	l := c.lockActiveLocked()
	if l == nil || l.HolderID != userID {
		c.mu.Unlock()
		return LockOutcome{Status: LockNotHolder}
	}
	c.lock = nil
	dispatched := c.dispatchLocked()
	c.mu.Unlock()

	c.Events.Emit(BusEvent{Type: EventLockReleased, Payload: LockChangedEvent{}})
	c.finishDispatch(dispatched)
	return LockOutcome{Status: LockReleased}
}

// ForceRevoke unconditionally clears the lock.
func (c *Coordinator) ForceRevoke() {
	c.mu.Lock()
	had := c.lock != nil
	c.lock = nil
	dispatched := c.dispatchLocked()
	c.mu.Unlock()

	if had {
		c.Events.Emit(BusEvent{Type: EventLockReleased, Payload: LockChangedEvent{}})
	}
	c.finishDispatch(dispatched)
}

// Holder returns a copy of the active lock, or nil. A lock past its
// expiry is reported as absent even if the janitor has not yet run.
func (c *Coordinator) Holder() *ManualLock {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lockActiveLocked()
	if l == nil {
		return nil
	}
	cp := *l
	return &cp
}

func (c *Coordinator) lockActiveLocked() *ManualLock {
	if c.lock != nil && c.lock.ExpiresAt.After(c.now()) {
		return c.lock
	}
	return nil
}
