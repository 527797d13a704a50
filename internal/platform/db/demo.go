package db

import (
	"context"

	"appraisal/internal/domain/appraisal"
	"appraisal/internal/domain/auth"
)

// DemoTenantID is the tenant used by the sqlite and memory modes.
const DemoTenantID = "00000000-0000-4000-8000-000000000001"

type DemoPerson struct {
	EmployeeID string
	UserID     string
	Name       string
	Email      string
	Role       auth.Role
}

var DemoPeople = []DemoPerson{
	{EmployeeID: "11111111-0000-4000-8000-000000000001", UserID: "22222222-0000-4000-8000-000000000001", Name: "Asha Rao", Email: "asha.rao@example.com", Role: auth.RoleEmployee},
	{EmployeeID: "11111111-0000-4000-8000-000000000002", UserID: "22222222-0000-4000-8000-000000000002", Name: "Ravi Menon", Email: "ravi.menon@example.com", Role: auth.RoleManager},
	{EmployeeID: "11111111-0000-4000-8000-000000000003", UserID: "22222222-0000-4000-8000-000000000003", Name: "Mina Das", Email: "mina.das@example.com", Role: auth.RoleDirector},
}

type demoCategory struct {
	ID   string
	Name string
}

var demoCategories = []demoCategory{
	{ID: "33333333-0000-4000-8000-000000000001", Name: "Delivery"},
	{ID: "33333333-0000-4000-8000-000000000002", Name: "Quality"},
	{ID: "33333333-0000-4000-8000-000000000003", Name: "Growth"},
}

const demoHeaderID = "44444444-0000-4000-8000-000000000001"

// DemoTemplates returns the organisation-wide starter templates for tenantID.
// Their weightages add up to 100.
func DemoTemplates(tenantID string) []appraisal.TemplateWithHeader {
	header := &appraisal.GoalTemplateHeader{
		ID:         demoHeaderID,
		TenantID:   tenantID,
		Name:       "Engineering baseline",
		Visibility: appraisal.VisibilityOrganization,
	}
	return []appraisal.TemplateWithHeader{
		{Header: header, Template: appraisal.GoalTemplate{
			ID: "55555555-0000-4000-8000-000000000001", TenantID: tenantID, HeaderID: demoHeaderID,
			Title: "Ship committed roadmap items", PerformanceFactor: "Delivery",
			Importance: appraisal.ImportanceHigh, Weightage: 50, CategoryIDs: []string{demoCategories[0].ID},
		}},
		{Header: header, Template: appraisal.GoalTemplate{
			ID: "55555555-0000-4000-8000-000000000002", TenantID: tenantID, HeaderID: demoHeaderID,
			Title: "Keep escaped defects low", PerformanceFactor: "Quality",
			Importance: appraisal.ImportanceMedium, Weightage: 30, CategoryIDs: []string{demoCategories[1].ID},
		}},
		{Header: header, Template: appraisal.GoalTemplate{
			ID: "55555555-0000-4000-8000-000000000003", TenantID: tenantID, HeaderID: demoHeaderID,
			Title: "Grow one new skill", PerformanceFactor: "Growth",
			Importance: appraisal.ImportanceLow, Weightage: 20, CategoryIDs: []string{demoCategories[2].ID},
		}},
	}
}

// Target receives demo data. The sqlite store and memstore implement it.
type Target interface {
	SaveParticipant(ctx context.Context, p appraisal.Participant) error
	SaveTemplate(ctx context.Context, t appraisal.TemplateWithHeader) error
}

// SeedDemo loads the demo people and templates into a non-Postgres store.
func SeedDemo(ctx context.Context, target Target, tenantID string) error {
	for _, p := range DemoPeople {
		if err := target.SaveParticipant(ctx, appraisal.Participant{
			EmployeeID: p.EmployeeID,
			TenantID:   tenantID,
			UserID:     p.UserID,
			Name:       p.Name,
			Email:      p.Email,
			Role:       p.Role,
		}); err != nil {
			return err
		}
	}
	for _, t := range DemoTemplates(tenantID) {
		if err := target.SaveTemplate(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
