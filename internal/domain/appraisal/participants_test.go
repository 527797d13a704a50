package appraisal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/internal/domain/auth"
)

func person(id string, role auth.Role) Participant {
	return Participant{EmployeeID: id, TenantID: "t1", Name: id, Role: role}
}

func TestValidateParticipants(t *testing.T) {
	cases := []struct {
		name                          string
		appraisee, appraiser, reviewer Participant
		ok                            bool
	}{
		{"valid", person("e1", auth.RoleEmployee), person("m1", auth.RoleManager), person("d1", auth.RoleDirector), true},
		{"peer managers", person("m2", auth.RoleManager), person("m1", auth.RoleManager), person("d1", auth.RoleDirector), true},
		{"appraisee is appraiser", person("m1", auth.RoleManager), person("m1", auth.RoleManager), person("d1", auth.RoleDirector), false},
		{"appraiser is reviewer", person("e1", auth.RoleEmployee), person("m1", auth.RoleManager), person("m1", auth.RoleManager), false},
		{"appraisee is reviewer", person("e1", auth.RoleEmployee), person("m1", auth.RoleManager), person("e1", auth.RoleEmployee), false},
		{"team lead appraiser", person("e1", auth.RoleEmployee), person("t1", auth.RoleTeamLead), person("d1", auth.RoleDirector), false},
		{"employee reviewer", person("e1", auth.RoleEmployee), person("m1", auth.RoleManager), person("e2", auth.RoleEmployee), false},
		{"appraisee outranks appraiser", person("d2", auth.RoleDirector), person("m1", auth.RoleManager), person("x1", auth.RoleExecutive), false},
		{"unknown appraiser role", person("e1", auth.RoleEmployee), person("m1", auth.Role("hr")), person("d1", auth.RoleDirector), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateParticipants(tc.appraisee, tc.appraiser, tc.reviewer)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var pe *ParticipantError
			require.ErrorAs(t, err, &pe)
			assert.ErrorIs(t, err, ErrParticipantConstraint)
		})
	}
}

func TestValidateParticipantsRejectsCrossTenant(t *testing.T) {
	reviewer := person("d1", auth.RoleDirector)
	reviewer.TenantID = "t2"
	err := ValidateParticipants(person("e1", auth.RoleEmployee), person("m1", auth.RoleManager), reviewer)
	assert.ErrorIs(t, err, ErrParticipantConstraint)
}

func TestValidatePeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, ValidatePeriod(Period{Start: start, End: start}))
	assert.NoError(t, ValidatePeriod(Period{Start: start, End: start.AddDate(1, 0, -1)}))
	assert.ErrorIs(t, ValidatePeriod(Period{Start: start, End: start.AddDate(0, 0, -1)}), ErrInvalidPeriod)
	assert.ErrorIs(t, ValidatePeriod(Period{Start: start}), ErrInvalidPeriod)
}
