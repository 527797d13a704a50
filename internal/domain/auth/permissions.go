package auth

import "context"

const (
	PermAppraisalRead      = "appraisal.read"
	PermAppraisalWrite     = "appraisal.write"
	PermAppraisalCreate    = "appraisal.create"
	PermAppraisalReport    = "appraisal.report"
	PermGoalTemplatesRead  = "goal_templates.read"
	PermGoalTemplatesWrite = "goal_templates.write"
)

var DefaultPermissions = []string{
	PermAppraisalRead,
	PermAppraisalWrite,
	PermAppraisalCreate,
	PermAppraisalReport,
	PermGoalTemplatesRead,
	PermGoalTemplatesWrite,
}

var RolePermissions = map[Role][]string{
	RoleEmployee: {
		PermAppraisalRead,
		PermAppraisalWrite,
		PermAppraisalReport,
		PermGoalTemplatesRead,
	},
	RoleTeamLead: {
		PermAppraisalRead,
		PermAppraisalWrite,
		PermAppraisalReport,
		PermGoalTemplatesRead,
	},
	RoleManager: {
		PermAppraisalRead,
		PermAppraisalWrite,
		PermAppraisalCreate,
		PermAppraisalReport,
		PermGoalTemplatesRead,
		PermGoalTemplatesWrite,
	},
	RoleDirector: {
		PermAppraisalRead,
		PermAppraisalWrite,
		PermAppraisalCreate,
		PermAppraisalReport,
		PermGoalTemplatesRead,
		PermGoalTemplatesWrite,
	},
	RoleExecutive: {
		PermAppraisalRead,
		PermAppraisalWrite,
		PermAppraisalCreate,
		PermAppraisalReport,
		PermGoalTemplatesRead,
		PermGoalTemplatesWrite,
	},
}

// StaticPermissions resolves permissions from RolePermissions without a
// database round trip.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	for _, perm := range RolePermissions[Role(role)] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}
