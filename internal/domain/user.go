package domain

import "time"

// Role enumerates platform roles carried by authenticated users.
type Role string

const (
	RoleCitizen Role = "CITIZEN"
	RoleOfficer Role = "OFFICER"
	RoleAdmin   Role = "ADMIN"
	RoleSuper   Role = "SUPER"
)

// IsStaff reports whether the role belongs to entity staff.
func (r Role) IsStaff() bool {
	switch r {
	case RoleOfficer, RoleAdmin, RoleSuper:
		return true
	default:
		return false
	}
}

// User is a citizen or a staff member. Staff belong to an area of an entity.
type User struct {
	ID        string
	FullName  string
	Email     string
	Role      Role
	EntityID  *string
	AreaID    *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Actor identifies who triggers a lifecycle operation.
type Actor struct {
	UserID string
	Role   Role
}
