package jobs

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRuns records job runs in the job_runs table.
type PgRuns struct {
	DB *pgxpool.Pool
}

func (p PgRuns) StartRun(ctx context.Context, jobType string) (string, error) {
	var runID string
	err := p.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, jobType, "running").Scan(&runID)
	return runID, err
}

func (p PgRuns) FinishRun(ctx context.Context, runID, status string, details []byte) error {
	_, err := p.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}
