package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"appraisal/internal/platform/config"
)

// Seed makes sure the configured tenant exists with the demo people and
// templates. It is idempotent and returns the tenant id.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) (string, error) {
	tenantID, err := ensureTenant(ctx, pool, cfg.SeedTenantName)
	if err != nil {
		return "", err
	}
	if _, err := pool.Exec(ctx, `
    INSERT INTO tenant_settings (tenant_id, email_notifications_enabled, email_from)
    VALUES ($1, $2, $3)
    ON CONFLICT (tenant_id) DO NOTHING
  `, tenantID, cfg.EmailEnabled, cfg.EmailFrom); err != nil {
		return "", err
	}
	if err := ensurePeople(ctx, pool, tenantID); err != nil {
		return "", err
	}
	if err := ensureTemplates(ctx, pool, tenantID); err != nil {
		return "", err
	}
	return tenantID, nil
}

func ensureTenant(ctx context.Context, pool *pgxpool.Pool, name string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM tenants WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}

	err = pool.QueryRow(ctx, "INSERT INTO tenants (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func ensurePeople(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	for _, p := range DemoPeople {
		if _, err := pool.Exec(ctx, `
      INSERT INTO users (id, tenant_id, email) VALUES ($1, $2, $3)
      ON CONFLICT DO NOTHING
    `, p.UserID, tenantID, p.Email); err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, `
      INSERT INTO employees (id, tenant_id, user_id, name, email, role) VALUES ($1, $2, $3, $4, $5, $6)
      ON CONFLICT (id) DO NOTHING
    `, p.EmployeeID, tenantID, p.UserID, p.Name, p.Email, string(p.Role)); err != nil {
			return err
		}
	}
	return nil
}

func ensureTemplates(ctx context.Context, pool *pgxpool.Pool, tenantID string) error {
	for _, c := range demoCategories {
		if _, err := pool.Exec(ctx, `
      INSERT INTO goal_categories (id, tenant_id, name) VALUES ($1, $2, $3)
      ON CONFLICT DO NOTHING
    `, c.ID, tenantID, c.Name); err != nil {
			return err
		}
	}
	for i, t := range DemoTemplates(tenantID) {
		if i == 0 {
			if _, err := pool.Exec(ctx, `
        INSERT INTO goal_template_headers (id, tenant_id, name, visibility) VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO NOTHING
      `, t.Header.ID, tenantID, t.Header.Name, string(t.Header.Visibility)); err != nil {
				return err
			}
		}
		if _, err := pool.Exec(ctx, `
      INSERT INTO goal_templates (id, tenant_id, header_id, title, performance_factor, importance, weightage)
      VALUES ($1, $2, $3, $4, $5, $6, $7)
      ON CONFLICT (id) DO NOTHING
    `, t.Template.ID, tenantID, t.Template.HeaderID, t.Template.Title, t.Template.PerformanceFactor,
			string(t.Template.Importance), t.Template.Weightage); err != nil {
			return err
		}
		for _, categoryID := range t.Template.CategoryIDs {
			if _, err := pool.Exec(ctx, `
        INSERT INTO goal_template_categories (template_id, category_id) VALUES ($1, $2)
        ON CONFLICT DO NOTHING
      `, t.Template.ID, categoryID); err != nil {
				return err
			}
		}
	}
	return nil
}
