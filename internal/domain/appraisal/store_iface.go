package appraisal

import (
	"context"
	"time"
)

// StoreAPI is the persistence collaborator. Status and goal-set writes
// compare-and-swap on Appraisal.Version and report ErrStaleVersion when the
// stored version moved on.
type StoreAPI interface {
	GoalPersister

	WithTx(ctx context.Context, fn func(tx StoreAPI) error) error

	Participant(ctx context.Context, tenantID, employeeID string) (Participant, error)
	CreateAppraisal(ctx context.Context, a Appraisal) (string, error)
	LoadAppraisal(ctx context.Context, tenantID, appraisalID string) (Record, error)
	ListAppraisals(ctx context.Context, tenantID string, filter ListFilter) ([]Appraisal, error)
	UpdateStatus(ctx context.Context, tenantID, appraisalID string, from, to Status, version int, at time.Time) error
	TouchVersion(ctx context.Context, tenantID, appraisalID string, version int, at time.Time) error

	RecordSelfAssessment(ctx context.Context, appraisalID string, goals []AppraisalGoal) error
	RecordAppraiserEvaluation(ctx context.Context, appraisalID string, goals []AppraisalGoal, rating int, comment string) error
	RecordReviewerEvaluation(ctx context.Context, appraisalID string, rating int, comment string) error

	// ListTemplates returns the tenant's templates, restricted to ids when
	// any are given.
	ListTemplates(ctx context.Context, tenantID string, ids []string) ([]TemplateWithHeader, error)
	// StaleAppraisals lists appraisals across tenants that are not complete,
	// whose status last changed before the cutoff and that have not been
	// reminded since the cutoff.
	StaleAppraisals(ctx context.Context, before time.Time, limit int) ([]Appraisal, error)
	MarkReminded(ctx context.Context, appraisalID string, at time.Time) error
}
