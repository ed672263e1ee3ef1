package robot

import "teletable/auth"

// Op names an operation subject to the admission policy.
type Op int

const (
	// Queue management: enqueue, remove, optimize.
	OpManageQueue Op = iota + 1
	// Direct navigate via POST /routes/select.
	OpSelectRoute
	// Acquiring the manual-drive lock.
	OpAcquireLock
	// Releasing the manual-drive lock.
	OpReleaseLock
	// NAVIGATE or CANCEL on the manual-drive session.
	OpManualNavigate
	// SET_MODE or DRIVE_COMMAND on the manual-drive session.
	OpManualDrive
)

// PolicyState is the shared-state context a decision depends on.
type PolicyState struct {
	// ActiveRoute reports whether a route is currently executing.
	ActiveRoute bool
	// HoldsLock reports whether the requester holds the active manual lock.
	HoldsLock bool
}

// Allowed is the role × operation admission table. It is the single
// source of truth for both the REST handlers and the manual-drive relay.
func Allowed(role auth.Role, op Op, s PolicyState) bool {
	switch op {
	case OpManageQueue:
		return role.IsAdmin()
	case OpSelectRoute:
		return role.Valid()
	case OpAcquireLock:
		if role.IsAdmin() {
			return true
		}
		if role == auth.RoleOperator {
			return !s.ActiveRoute
		}
		return false
	case OpReleaseLock:
		return role.CanOperate()
	case OpManualNavigate:
		return role.IsAdmin()
	case OpManualDrive:
		if role.IsAdmin() {
			return true
		}
		return role == auth.RoleOperator && s.HoldsLock
	}
	return false
}

// manualAllowList is the set of command types users may submit on the
// manual-drive session at all. Everything else is silently dropped.
func onManualAllowList(t CommandType) bool {
	switch t {
	case CmdNavigate, CmdCancel, CmdSetMode, CmdDrive:
		return true
	}
	return false
}

// manualOp maps an allow-listed command type to its policy operation.
func manualOp(t CommandType) Op {
	if t == CmdNavigate || t == CmdCancel {
		return OpManualNavigate
	}
	return OpManualDrive
}
