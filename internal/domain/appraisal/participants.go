package appraisal

import (
	"fmt"
)

// ValidateParticipants enforces the three-participant rules: all distinct,
// appraiser and reviewer managerial, appraisee not above the appraiser.
func ValidateParticipants(appraisee, appraiser, reviewer Participant) error {
	if appraisee.EmployeeID == appraiser.EmployeeID ||
		appraisee.EmployeeID == reviewer.EmployeeID ||
		appraiser.EmployeeID == reviewer.EmployeeID {
		return &ParticipantError{Reason: "appraisee, appraiser and reviewer must be different people"}
	}
	if appraisee.TenantID != appraiser.TenantID || appraisee.TenantID != reviewer.TenantID {
		return &ParticipantError{Reason: "participants belong to different tenants"}
	}
	if !appraiser.Role.Managerial() {
		return &ParticipantError{Reason: fmt.Sprintf("appraiser role %s is below manager", appraiser.Role)}
	}
	if !reviewer.Role.Managerial() {
		return &ParticipantError{Reason: fmt.Sprintf("reviewer role %s is below manager", reviewer.Role)}
	}
	if appraisee.Role.Level() > appraiser.Role.Level() {
		return &ParticipantError{Reason: fmt.Sprintf("appraisee role %s outranks appraiser role %s", appraisee.Role, appraiser.Role)}
	}
	return nil
}

func ValidatePeriod(p Period) error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}
