package auth

// Role represents what a session token may do
type Role string

const (
	// RoleGenerator may run batches and validate credentials
	RoleGenerator Role = "generator"

	// RoleViewer may only read the mode catalogue
	RoleViewer Role = "viewer"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	switch r {
	case RoleGenerator, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role has permission for a required role.
// Generator implies viewer.
func (r Role) HasPermission(required Role) bool {
	if r == RoleGenerator {
		return true
	}
	return r == required
}
