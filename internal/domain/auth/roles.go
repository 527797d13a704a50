package auth

import "fmt"

// Role is the closed set of organisational roles. Hierarchy is carried by an
// explicit level rather than inferred from role names.
type Role string

const (
	RoleEmployee  Role = "employee"
	RoleTeamLead  Role = "team_lead"
	RoleManager   Role = "manager"
	RoleDirector  Role = "director"
	RoleExecutive Role = "executive"
)

var roleLevels = map[Role]int{
	RoleEmployee:  10,
	RoleTeamLead:  20,
	RoleManager:   30,
	RoleDirector:  40,
	RoleExecutive: 50,
}

// Roles lists every role from the lowest hierarchy level to the highest.
var Roles = []Role{RoleEmployee, RoleTeamLead, RoleManager, RoleDirector, RoleExecutive}

func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the hierarchy level, or 0 for an unknown role.
func (r Role) Level() int {
	return roleLevels[r]
}

// Managerial reports whether the role may act as an appraiser or reviewer.
func (r Role) Managerial() bool {
	return r.Valid() && r.Level() >= RoleManager.Level()
}

func (r Role) String() string {
	return string(r)
}

type UserContext struct {
	UserID     string
	TenantID   string
	EmployeeID string
	Role       Role
}
