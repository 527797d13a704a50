// Package sqlite provides a single-node SQLite implementation of
// appraisal.StoreAPI. The schema is created on New; use ":memory:" for a
// throwaway database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"appraisal/internal/domain/appraisal"
	"appraisal/internal/domain/auth"
)

// Fixed-width UTC timestamps so text comparison orders correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	q  execer
	mu *sync.Mutex
	tx bool
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, q: db, mu: &sync.Mutex{}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS appraisals (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		appraisee_id TEXT NOT NULL REFERENCES employees(id),
		appraiser_id TEXT NOT NULL REFERENCES employees(id),
		reviewer_id TEXT NOT NULL REFERENCES employees(id),
		appraisal_type_id TEXT NOT NULL DEFAULT '',
		range_id TEXT NOT NULL DEFAULT '',
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL,
		appraiser_overall_rating INTEGER NOT NULL DEFAULT 0,
		appraiser_overall_comments TEXT NOT NULL DEFAULT '',
		reviewer_overall_rating INTEGER NOT NULL DEFAULT 0,
		reviewer_overall_comments TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		status_changed_at TEXT NOT NULL,
		reminded_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_appraisals_tenant ON appraisals(tenant_id, status);
	CREATE INDEX IF NOT EXISTS idx_appraisals_status_changed ON appraisals(status_changed_at);

	CREATE TABLE IF NOT EXISTS appraisal_goals (
		id TEXT PRIMARY KEY,
		appraisal_id TEXT NOT NULL REFERENCES appraisals(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		performance_factor TEXT NOT NULL DEFAULT '',
		importance TEXT NOT NULL,
		weightage INTEGER NOT NULL CHECK (weightage BETWEEN 1 AND 100),
		category_id TEXT NOT NULL DEFAULT '',
		template_id TEXT NOT NULL DEFAULT '',
		self_comment TEXT NOT NULL DEFAULT '',
		self_rating INTEGER NOT NULL DEFAULT 0,
		appraiser_comment TEXT NOT NULL DEFAULT '',
		appraiser_rating INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_appraisal_goals_appraisal ON appraisal_goals(appraisal_id, position);

	CREATE TABLE IF NOT EXISTS goal_template_headers (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		shared_with_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS goal_templates (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		header_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		performance_factor TEXT NOT NULL DEFAULT '',
		importance TEXT NOT NULL,
		weightage INTEGER NOT NULL,
		category_ids_json TEXT NOT NULL DEFAULT '[]',
		owner_id TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn inside one transaction. Transactions are serialised.
func (s *Store) WithTx(ctx context.Context, fn func(tx appraisal.StoreAPI) error) error {
	if s.tx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{db: s.db, q: sqlTx, mu: s.mu, tx: true}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// SaveParticipant inserts or replaces an employee row.
func (s *Store) SaveParticipant(ctx context.Context, p appraisal.Participant) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO employees (id, tenant_id, user_id, name, email, role)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id, user_id = excluded.user_id,
			name = excluded.name, email = excluded.email, role = excluded.role
	`, p.EmployeeID, p.TenantID, p.UserID, p.Name, p.Email, string(p.Role))
	return err
}

// SaveTemplate inserts or replaces a template and its header.
func (s *Store) SaveTemplate(ctx context.Context, t appraisal.TemplateWithHeader) error {
	if t.Header != nil {
		shared, _ := json.Marshal(t.Header.SharedWith)
		if _, err := s.q.ExecContext(ctx, `
			INSERT OR REPLACE INTO goal_template_headers (id, tenant_id, name, role, visibility, owner_id, shared_with_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.Header.ID, t.Header.TenantID, t.Header.Name, string(t.Header.Role), string(t.Header.Visibility), t.Header.OwnerID, string(shared)); err != nil {
			return err
		}
		t.Template.HeaderID = t.Header.ID
	}
	categories, _ := json.Marshal(t.Template.CategoryIDs)
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO goal_templates (id, tenant_id, header_id, title, description, performance_factor, importance, weightage, category_ids_json, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Template.ID, t.Template.TenantID, t.Template.HeaderID, t.Template.Title, t.Template.Description,
		t.Template.PerformanceFactor, string(t.Template.Importance), t.Template.Weightage, string(categories), t.Template.OwnerID)
	return err
}

func (s *Store) Participant(ctx context.Context, tenantID, employeeID string) (appraisal.Participant, error) {
	var p appraisal.Participant
	var role string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, name, email, role FROM employees WHERE tenant_id = ? AND id = ?
	`, tenantID, employeeID).Scan(&p.EmployeeID, &p.TenantID, &p.UserID, &p.Name, &p.Email, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return appraisal.Participant{}, fmt.Errorf("%w: %s", appraisal.ErrParticipantNotFound, employeeID)
	}
	if err != nil {
		return appraisal.Participant{}, err
	}
	p.Role = auth.Role(role)
	return p, nil
}

func (s *Store) CreateAppraisal(ctx context.Context, a appraisal.Appraisal) (string, error) {
	id := uuid.NewString()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO appraisals
		(id, tenant_id, appraisee_id, appraiser_id, reviewer_id, appraisal_type_id, range_id,
		 period_start, period_end, status, version, created_by, created_at, updated_at, status_changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, a.TenantID, a.AppraiseeID, a.AppraiserID, a.ReviewerID, a.AppraisalTypeID, a.RangeID,
		formatTime(a.Period.Start), formatTime(a.Period.End), string(a.Status), a.Version, a.CreatedBy,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt), formatTime(a.StatusChangedAt))
	if err != nil {
		return "", fmt.Errorf("failed to create appraisal: %w", err)
	}
	return id, nil
}

const appraisalColumns = `id, tenant_id, appraisee_id, appraiser_id, reviewer_id, appraisal_type_id, range_id,
	period_start, period_end, status, appraiser_overall_rating, appraiser_overall_comments,
	reviewer_overall_rating, reviewer_overall_comments, version, created_by, created_at, updated_at, status_changed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAppraisal(row scanner) (appraisal.Appraisal, error) {
	var a appraisal.Appraisal
	var status, start, end, created, updated, changed string
	if err := row.Scan(&a.ID, &a.TenantID, &a.AppraiseeID, &a.AppraiserID, &a.ReviewerID, &a.AppraisalTypeID, &a.RangeID,
		&start, &end, &status, &a.AppraiserOverallRating, &a.AppraiserOverallComments,
		&a.ReviewerOverallRating, &a.ReviewerOverallComments, &a.Version, &a.CreatedBy,
		&created, &updated, &changed); err != nil {
		return appraisal.Appraisal{}, err
	}
	a.Status = appraisal.Status(status)
	a.Period.Start = parseTime(start)
	a.Period.End = parseTime(end)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	a.StatusChangedAt = parseTime(changed)
	return a, nil
}

func (s *Store) LoadAppraisal(ctx context.Context, tenantID, appraisalID string) (appraisal.Record, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+appraisalColumns+" FROM appraisals WHERE tenant_id = ? AND id = ?", tenantID, appraisalID)
	a, err := scanAppraisal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return appraisal.Record{}, appraisal.ErrNotFound
	}
	if err != nil {
		return appraisal.Record{}, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, appraisal_id, title, description, performance_factor, importance, weightage,
		       category_id, template_id, self_comment, self_rating, appraiser_comment, appraiser_rating, position
		FROM appraisal_goals WHERE appraisal_id = ? ORDER BY position, id
	`, appraisalID)
	if err != nil {
		return appraisal.Record{}, err
	}
	defer rows.Close()

	goals := []appraisal.AppraisalGoal{}
	for rows.Next() {
		var g appraisal.AppraisalGoal
		var importance string
		if err := rows.Scan(&g.ID, &g.AppraisalID, &g.Goal.Title, &g.Goal.Description, &g.Goal.PerformanceFactor,
			&importance, &g.Goal.Weightage, &g.Goal.CategoryID, &g.Goal.TemplateID,
			&g.SelfComment, &g.SelfRating, &g.AppraiserComment, &g.AppraiserRating, &g.Position); err != nil {
			return appraisal.Record{}, err
		}
		g.Goal.Importance = appraisal.Importance(importance)
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return appraisal.Record{}, err
	}
	return appraisal.Record{Appraisal: a, Goals: goals}, nil
}

func (s *Store) ListAppraisals(ctx context.Context, tenantID string, filter appraisal.ListFilter) ([]appraisal.Appraisal, error) {
	var b strings.Builder
	b.WriteString("SELECT " + appraisalColumns + " FROM appraisals WHERE tenant_id = ?")
	args := []any{tenantID}
	if filter.EmployeeID != "" {
		b.WriteString(" AND (appraisee_id = ? OR appraiser_id = ? OR reviewer_id = ?)")
		args = append(args, filter.EmployeeID, filter.EmployeeID, filter.EmployeeID)
	}
	if filter.Status != "" {
		b.WriteString(" AND status = ?")
		args = append(args, string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	b.WriteString(" ORDER BY created_at DESC, id LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)
	return s.queryAppraisals(ctx, b.String(), args...)
}

func (s *Store) UpdateStatus(ctx context.Context, tenantID, appraisalID string, from, to appraisal.Status, version int, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE appraisals SET status = ?, version = version + 1, updated_at = ?, status_changed_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ? AND version = ?
	`, string(to), formatTime(at), formatTime(at), tenantID, appraisalID, string(from), version)
	if err != nil {
		return err
	}
	return s.checkSwapped(ctx, res, tenantID, appraisalID)
}

func (s *Store) TouchVersion(ctx context.Context, tenantID, appraisalID string, version int, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE appraisals SET version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`, formatTime(at), tenantID, appraisalID, version)
	if err != nil {
		return err
	}
	return s.checkSwapped(ctx, res, tenantID, appraisalID)
}

func (s *Store) AddGoal(ctx context.Context, appraisalID string, goal appraisal.AppraisalGoal) (string, error) {
	id := uuid.NewString()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO appraisal_goals (id, appraisal_id, title, description, performance_factor, importance, weightage, category_id, template_id, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, appraisalID, goal.Goal.Title, goal.Goal.Description, goal.Goal.PerformanceFactor,
		string(goal.Goal.Importance), goal.Goal.Weightage, goal.Goal.CategoryID, goal.Goal.TemplateID, goal.Position)
	if err != nil {
		return "", fmt.Errorf("failed to add goal: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateGoal(ctx context.Context, goal appraisal.AppraisalGoal) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE appraisal_goals
		SET title = ?, description = ?, performance_factor = ?, importance = ?, weightage = ?, category_id = ?, template_id = ?
		WHERE appraisal_id = ? AND id = ?
	`, goal.Goal.Title, goal.Goal.Description, goal.Goal.PerformanceFactor, string(goal.Goal.Importance),
		goal.Goal.Weightage, goal.Goal.CategoryID, goal.Goal.TemplateID, goal.AppraisalID, goal.ID)
	if err != nil {
		return err
	}
	return requireRow(res, goal.ID)
}

func (s *Store) RemoveGoal(ctx context.Context, appraisalID, goalID string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM appraisal_goals WHERE appraisal_id = ? AND id = ?", appraisalID, goalID)
	if err != nil {
		return err
	}
	return requireRow(res, goalID)
}

func (s *Store) RecordSelfAssessment(ctx context.Context, appraisalID string, goals []appraisal.AppraisalGoal) error {
	for _, g := range goals {
		if _, err := s.q.ExecContext(ctx, `
			UPDATE appraisal_goals SET self_comment = ?, self_rating = ? WHERE appraisal_id = ? AND id = ?
		`, g.SelfComment, g.SelfRating, appraisalID, g.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RecordAppraiserEvaluation(ctx context.Context, appraisalID string, goals []appraisal.AppraisalGoal, rating int, comment string) error {
	for _, g := range goals {
		if _, err := s.q.ExecContext(ctx, `
			UPDATE appraisal_goals SET appraiser_comment = ?, appraiser_rating = ? WHERE appraisal_id = ? AND id = ?
		`, g.AppraiserComment, g.AppraiserRating, appraisalID, g.ID); err != nil {
			return err
		}
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE appraisals SET appraiser_overall_rating = ?, appraiser_overall_comments = ? WHERE id = ?
	`, rating, comment, appraisalID)
	return err
}

func (s *Store) RecordReviewerEvaluation(ctx context.Context, appraisalID string, rating int, comment string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE appraisals SET reviewer_overall_rating = ?, reviewer_overall_comments = ? WHERE id = ?
	`, rating, comment, appraisalID)
	return err
}

func (s *Store) ListTemplates(ctx context.Context, tenantID string, ids []string) ([]appraisal.TemplateWithHeader, error) {
	query := `
		SELECT t.id, t.tenant_id, t.header_id, t.title, t.description, t.performance_factor, t.importance,
		       t.weightage, t.category_ids_json, t.owner_id,
		       COALESCE(h.name, ''), COALESCE(h.role, ''), COALESCE(h.visibility, ''), COALESCE(h.owner_id, ''), COALESCE(h.shared_with_json, '[]')
		FROM goal_templates t
		LEFT JOIN goal_template_headers h ON h.id = t.header_id
		WHERE t.tenant_id = ?`
	args := []any{tenantID}
	if len(ids) > 0 {
		query += " AND t.id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY t.title"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []appraisal.TemplateWithHeader
	for rows.Next() {
		var t appraisal.GoalTemplate
		var importance, categoriesJSON string
		var hName, hRole, hVisibility, hOwner, sharedJSON string
		if err := rows.Scan(&t.ID, &t.TenantID, &t.HeaderID, &t.Title, &t.Description, &t.PerformanceFactor,
			&importance, &t.Weightage, &categoriesJSON, &t.OwnerID,
			&hName, &hRole, &hVisibility, &hOwner, &sharedJSON); err != nil {
			return nil, err
		}
		t.Importance = appraisal.Importance(importance)
		if err := json.Unmarshal([]byte(categoriesJSON), &t.CategoryIDs); err != nil {
			return nil, fmt.Errorf("template %s categories: %w", t.ID, err)
		}
		item := appraisal.TemplateWithHeader{Template: t}
		if t.HeaderID != "" && hVisibility != "" {
			header := &appraisal.GoalTemplateHeader{
				ID:         t.HeaderID,
				TenantID:   t.TenantID,
				Name:       hName,
				Role:       auth.Role(hRole),
				Visibility: appraisal.TemplateVisibility(hVisibility),
				OwnerID:    hOwner,
			}
			if err := json.Unmarshal([]byte(sharedJSON), &header.SharedWith); err != nil {
				return nil, fmt.Errorf("template header %s sharing: %w", t.HeaderID, err)
			}
			item.Header = header
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) StaleAppraisals(ctx context.Context, before time.Time, limit int) ([]appraisal.Appraisal, error) {
	return s.queryAppraisals(ctx, "SELECT "+appraisalColumns+`
		FROM appraisals WHERE status <> ? AND status_changed_at < ?
		AND (reminded_at IS NULL OR reminded_at < ?)
		ORDER BY status_changed_at LIMIT ?
	`, string(appraisal.StatusComplete), formatTime(before), formatTime(before), limit)
}

func (s *Store) MarkReminded(ctx context.Context, appraisalID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, "UPDATE appraisals SET reminded_at = ? WHERE id = ?", formatTime(at), appraisalID)
	return err
}

func (s *Store) queryAppraisals(ctx context.Context, query string, args ...any) ([]appraisal.Appraisal, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []appraisal.Appraisal{}
	for rows.Next() {
		a, err := scanAppraisal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) checkSwapped(ctx context.Context, res sql.Result, tenantID, appraisalID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(1) FROM appraisals WHERE tenant_id = ? AND id = ?", tenantID, appraisalID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return appraisal.ErrNotFound
	}
	return appraisal.ErrStaleVersion
}

func requireRow(res sql.Result, goalID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", appraisal.ErrGoalNotFound, goalID)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
