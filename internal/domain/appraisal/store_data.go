package appraisal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"appraisal/internal/domain/auth"
)

const appraisalColumns = `
    id, tenant_id, appraisee_id, appraiser_id, reviewer_id, appraisal_type_id, range_id,
    period_start, period_end, status,
    appraiser_overall_rating, appraiser_overall_comments,
    reviewer_overall_rating, reviewer_overall_comments,
    version, created_by, created_at, updated_at, status_changed_at
`

func (s *Store) Participant(ctx context.Context, tenantID, employeeID string) (Participant, error) {
	var p Participant
	var role string
	err := s.q.QueryRow(ctx, `
    SELECT id, tenant_id, COALESCE(user_id::text, ''), name, email, role
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID).Scan(&p.EmployeeID, &p.TenantID, &p.UserID, &p.Name, &p.Email, &role)
	if err != nil {
		if isMissing(err) {
			return Participant{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, employeeID)
		}
		return Participant{}, err
	}
	p.Role = auth.Role(role)
	return p, nil
}

func (s *Store) CreateAppraisal(ctx context.Context, a Appraisal) (string, error) {
	var id string
	err := s.q.QueryRow(ctx, `
    INSERT INTO appraisals (tenant_id, appraisee_id, appraiser_id, reviewer_id, appraisal_type_id, range_id,
      period_start, period_end, status, version, created_by, created_at, updated_at, status_changed_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12,$12)
    RETURNING id
  `, a.TenantID, a.AppraiseeID, a.AppraiserID, a.ReviewerID, a.AppraisalTypeID, a.RangeID,
		a.Period.Start, a.Period.End, a.Status, a.Version, a.CreatedBy, a.CreatedAt).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) LoadAppraisal(ctx context.Context, tenantID, appraisalID string) (Record, error) {
	row := s.q.QueryRow(ctx, "SELECT "+appraisalColumns+" FROM appraisals WHERE tenant_id = $1 AND id = $2", tenantID, appraisalID)
	a, err := scanAppraisal(row)
	if err != nil {
		if isMissing(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	rows, err := s.q.Query(ctx, `
    SELECT id, appraisal_id, title, description, performance_factor, importance, weightage,
           category_id, template_id, self_comment, COALESCE(self_rating, 0),
           appraiser_comment, COALESCE(appraiser_rating, 0), position
    FROM appraisal_goals
    WHERE appraisal_id = $1
    ORDER BY position, id
  `, appraisalID)
	if err != nil {
		return Record{}, err
	}
	defer rows.Close()

	goals := []AppraisalGoal{}
	for rows.Next() {
		var g AppraisalGoal
		var importance string
		if err := rows.Scan(&g.ID, &g.AppraisalID, &g.Goal.Title, &g.Goal.Description, &g.Goal.PerformanceFactor,
			&importance, &g.Goal.Weightage, &g.Goal.CategoryID, &g.Goal.TemplateID,
			&g.SelfComment, &g.SelfRating, &g.AppraiserComment, &g.AppraiserRating, &g.Position); err != nil {
			return Record{}, err
		}
		g.Goal.Importance = Importance(importance)
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return Record{}, err
	}
	return Record{Appraisal: a, Goals: goals}, nil
}

func (s *Store) ListAppraisals(ctx context.Context, tenantID string, filter ListFilter) ([]Appraisal, error) {
	query := "SELECT " + appraisalColumns + " FROM appraisals WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.EmployeeID != "" {
		query += fmt.Sprintf(" AND (appraisee_id = $%d OR appraiser_id = $%d OR reviewer_id = $%d)", len(args)+1, len(args)+1, len(args)+1)
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppraisals(rows)
}

func (s *Store) UpdateStatus(ctx context.Context, tenantID, appraisalID string, from, to Status, version int, at time.Time) error {
	tag, err := s.q.Exec(ctx, `
    UPDATE appraisals
    SET status = $1, version = version + 1, updated_at = $2, status_changed_at = $2
    WHERE tenant_id = $3 AND id = $4 AND status = $5 AND version = $6
  `, to, at, tenantID, appraisalID, from, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.missOrStale(ctx, tenantID, appraisalID)
	}
	return nil
}

func (s *Store) TouchVersion(ctx context.Context, tenantID, appraisalID string, version int, at time.Time) error {
	tag, err := s.q.Exec(ctx, `
    UPDATE appraisals SET version = version + 1, updated_at = $1
    WHERE tenant_id = $2 AND id = $3 AND version = $4
  `, at, tenantID, appraisalID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.missOrStale(ctx, tenantID, appraisalID)
	}
	return nil
}

func (s *Store) AddGoal(ctx context.Context, appraisalID string, goal AppraisalGoal) (string, error) {
	var id string
	err := s.q.QueryRow(ctx, `
    INSERT INTO appraisal_goals (appraisal_id, title, description, performance_factor, importance, weightage, category_id, template_id, position)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id
  `, appraisalID, goal.Goal.Title, goal.Goal.Description, goal.Goal.PerformanceFactor, goal.Goal.Importance,
		goal.Goal.Weightage, goal.Goal.CategoryID, goal.Goal.TemplateID, goal.Position).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpdateGoal(ctx context.Context, goal AppraisalGoal) error {
	tag, err := s.q.Exec(ctx, `
    UPDATE appraisal_goals
    SET title = $1, description = $2, performance_factor = $3, importance = $4, weightage = $5, category_id = $6, template_id = $7
    WHERE appraisal_id = $8 AND id = $9
  `, goal.Goal.Title, goal.Goal.Description, goal.Goal.PerformanceFactor, goal.Goal.Importance,
		goal.Goal.Weightage, goal.Goal.CategoryID, goal.Goal.TemplateID, goal.AppraisalID, goal.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goal.ID)
	}
	return nil
}

func (s *Store) RemoveGoal(ctx context.Context, appraisalID, goalID string) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM appraisal_goals WHERE appraisal_id = $1 AND id = $2", appraisalID, goalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	return nil
}

func (s *Store) RecordSelfAssessment(ctx context.Context, appraisalID string, goals []AppraisalGoal) error {
	for _, g := range goals {
		if _, err := s.q.Exec(ctx, `
      UPDATE appraisal_goals SET self_comment = $1, self_rating = $2
      WHERE appraisal_id = $3 AND id = $4
    `, g.SelfComment, nullIfZero(g.SelfRating), appraisalID, g.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RecordAppraiserEvaluation(ctx context.Context, appraisalID string, goals []AppraisalGoal, rating int, comment string) error {
	for _, g := range goals {
		if _, err := s.q.Exec(ctx, `
      UPDATE appraisal_goals SET appraiser_comment = $1, appraiser_rating = $2
      WHERE appraisal_id = $3 AND id = $4
    `, g.AppraiserComment, nullIfZero(g.AppraiserRating), appraisalID, g.ID); err != nil {
			return err
		}
	}
	_, err := s.q.Exec(ctx, `
    UPDATE appraisals SET appraiser_overall_rating = $1, appraiser_overall_comments = $2
    WHERE id = $3
  `, nullIfZero(rating), comment, appraisalID)
	return err
}

func (s *Store) RecordReviewerEvaluation(ctx context.Context, appraisalID string, rating int, comment string) error {
	_, err := s.q.Exec(ctx, `
    UPDATE appraisals SET reviewer_overall_rating = $1, reviewer_overall_comments = $2
    WHERE id = $3
  `, nullIfZero(rating), comment, appraisalID)
	return err
}

func (s *Store) ListTemplates(ctx context.Context, tenantID string, ids []string) ([]TemplateWithHeader, error) {
	query := `
    SELECT t.id, t.tenant_id, COALESCE(t.header_id::text, ''), t.title, t.description, t.performance_factor,
           t.importance, t.weightage, COALESCE(t.owner_id::text, ''),
           COALESCE(array_agg(c.category_id::text ORDER BY c.category_id) FILTER (WHERE c.category_id IS NOT NULL), '{}'),
           h.name, h.role, h.visibility, COALESCE(h.owner_id::text, ''), COALESCE(h.shared_with::text[], '{}')
    FROM goal_templates t
    LEFT JOIN goal_template_categories c ON c.template_id = t.id
    LEFT JOIN goal_template_headers h ON h.id = t.header_id
    WHERE t.tenant_id = $1
  `
	args := []any{tenantID}
	if len(ids) > 0 {
		query += " AND t.id::text = ANY($2)"
		args = append(args, ids)
	}
	query += " GROUP BY t.id, h.id ORDER BY t.title"

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TemplateWithHeader
	for rows.Next() {
		var t GoalTemplate
		var importance string
		var headerName, headerRole, headerVisibility *string
		var headerOwner string
		var sharedWith []string
		if err := rows.Scan(&t.ID, &t.TenantID, &t.HeaderID, &t.Title, &t.Description, &t.PerformanceFactor,
			&importance, &t.Weightage, &t.OwnerID, &t.CategoryIDs,
			&headerName, &headerRole, &headerVisibility, &headerOwner, &sharedWith); err != nil {
			return nil, err
		}
		t.Importance = Importance(importance)
		item := TemplateWithHeader{Template: t}
		if t.HeaderID != "" && headerVisibility != nil {
			item.Header = &GoalTemplateHeader{
				ID:         t.HeaderID,
				TenantID:   t.TenantID,
				Name:       deref(headerName),
				Role:       auth.Role(deref(headerRole)),
				Visibility: TemplateVisibility(*headerVisibility),
				OwnerID:    headerOwner,
				SharedWith: sharedWith,
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) StaleAppraisals(ctx context.Context, before time.Time, limit int) ([]Appraisal, error) {
	rows, err := s.q.Query(ctx, "SELECT "+appraisalColumns+`
    FROM appraisals
    WHERE status <> $1 AND status_changed_at < $2
      AND (reminded_at IS NULL OR reminded_at < $2)
    ORDER BY status_changed_at
    LIMIT $3
  `, StatusComplete, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppraisals(rows)
}

func (s *Store) MarkReminded(ctx context.Context, appraisalID string, at time.Time) error {
	_, err := s.q.Exec(ctx, "UPDATE appraisals SET reminded_at = $1 WHERE id = $2", at, appraisalID)
	return err
}

func (s *Store) missOrStale(ctx context.Context, tenantID, appraisalID string) error {
	var count int
	if err := s.q.QueryRow(ctx, "SELECT COUNT(1) FROM appraisals WHERE tenant_id = $1 AND id = $2", tenantID, appraisalID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStaleVersion
}

func collectAppraisals(rows pgx.Rows) ([]Appraisal, error) {
	out := []Appraisal{}
	for rows.Next() {
		a, err := scanAppraisal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAppraisal(row pgx.Row) (Appraisal, error) {
	var a Appraisal
	var status string
	var appraiserRating, reviewerRating *int
	err := row.Scan(&a.ID, &a.TenantID, &a.AppraiseeID, &a.AppraiserID, &a.ReviewerID, &a.AppraisalTypeID, &a.RangeID,
		&a.Period.Start, &a.Period.End, &status,
		&appraiserRating, &a.AppraiserOverallComments,
		&reviewerRating, &a.ReviewerOverallComments,
		&a.Version, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt, &a.StatusChangedAt)
	if err != nil {
		return Appraisal{}, err
	}
	a.Status = Status(status)
	if appraiserRating != nil {
		a.AppraiserOverallRating = *appraiserRating
	}
	if reviewerRating != nil {
		a.ReviewerOverallRating = *reviewerRating
	}
	return a, nil
}

// isMissing treats malformed ids the same as absent rows.
func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func nullIfZero(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
