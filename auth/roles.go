package auth

// Role is the access level carried in a user's token.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleOperator Role = "Operator"
	RoleViewer   Role = "Viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

func (r Role) IsAdmin() bool { return r == RoleAdmin }

// CanOperate reports whether the role may take control actions at all.
func (r Role) CanOperate() bool { return r == RoleAdmin || r == RoleOperator }
