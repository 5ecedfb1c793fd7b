package entity

// Role is the caller's role as carried in the access token
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleSurgeon Role = "surgeon"
	RoleStaff   Role = "staff"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleSurgeon || r == RoleStaff
}
