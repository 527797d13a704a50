package appraisal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"appraisal/internal/domain/notifications"
)

// Notifier delivers in-app notifications. *notifications.Service satisfies it.
type Notifier interface {
	Create(ctx context.Context, tenantID, userID, ntype, title, body string) error
}

type TransitionRecorder interface {
	RecordTransition(from, to string)
}

type Service struct {
	store   StoreAPI
	Notify  Notifier
	Metrics TransitionRecorder
	Now     func() time.Time
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store, Now: time.Now}
}

type CreateDraftInput struct {
	AppraiseeID     string `json:"appraiseeId"`
	AppraiserID     string `json:"appraiserId"`
	ReviewerID      string `json:"reviewerId"`
	AppraisalTypeID string `json:"appraisalTypeId"`
	RangeID         string `json:"rangeId"`
	Period          Period `json:"period"`
}

type NewGoal struct {
	LocalID string `json:"localId"`
	Goal    Goal   `json:"goal"`
}

type GoalUpdate struct {
	ID   string `json:"id"`
	Goal Goal   `json:"goal"`
}

// GoalChanges is one editing session's worth of staged goal changes.
type GoalChanges struct {
	Removed []string     `json:"removed"`
	Updated []GoalUpdate `json:"updated"`
	Added   []NewGoal    `json:"added"`
}

type commandOptions struct {
	expectedVersion int
}

type CommandOption func(*commandOptions)

// WithExpectedVersion rejects the command with ErrStaleVersion unless the
// appraisal is still at version v.
func WithExpectedVersion(v int) CommandOption {
	return func(o *commandOptions) {
		o.expectedVersion = v
	}
}

func (s *Service) CreateDraft(ctx context.Context, actor Actor, in CreateDraftInput) (AppraisalView, error) {
	if !actor.Role.Managerial() {
		return AppraisalView{}, fmt.Errorf("%w: role %s cannot create appraisals", ErrAccessDenied, actor.Role)
	}
	in.AppraiseeID = strings.TrimSpace(in.AppraiseeID)
	in.AppraiserID = strings.TrimSpace(in.AppraiserID)
	in.ReviewerID = strings.TrimSpace(in.ReviewerID)
	if in.AppraiseeID == "" || in.AppraiserID == "" || in.ReviewerID == "" {
		return AppraisalView{}, &ParticipantError{Reason: "appraisee, appraiser and reviewer are required"}
	}
	if err := ValidatePeriod(in.Period); err != nil {
		return AppraisalView{}, err
	}

	people, err := s.participants(ctx, actor.TenantID, in.AppraiseeID, in.AppraiserID, in.ReviewerID)
	if err != nil {
		return AppraisalView{}, err
	}
	if err := ValidateParticipants(people[0], people[1], people[2]); err != nil {
		return AppraisalView{}, err
	}

	now := s.now()
	a := Appraisal{
		TenantID:        actor.TenantID,
		AppraiseeID:     in.AppraiseeID,
		AppraiserID:     in.AppraiserID,
		ReviewerID:      in.ReviewerID,
		AppraisalTypeID: in.AppraisalTypeID,
		RangeID:         in.RangeID,
		Period:          in.Period,
		Status:          StatusDraft,
		Version:         1,
		CreatedBy:       actor.EmployeeID,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}
	id, err := s.store.CreateAppraisal(ctx, a)
	if err != nil {
		return AppraisalView{}, err
	}
	a.ID = id
	slog.Info("appraisal draft created", "appraisalId", id, "appraiseeId", a.AppraiseeID)

	if actor.EmployeeID != a.AppraiserID {
		s.notifyParticipant(ctx, people[1], notifications.TypeAppraisalAssigned,
			"Appraisal assigned", fmt.Sprintf("You are the appraiser for appraisal %s. Add goals and submit it.", id))
	}
	return Redact(Record{Appraisal: a}, RelationshipOf(a, actor.EmployeeID)), nil
}

// SaveDraftGoals replays removals, updates and additions through a ledger and
// commits them. Updates are checked against the batch's final weights, so
// their order does not matter. Each addition must then fit what is left.
func (s *Service) SaveDraftGoals(ctx context.Context, actor Actor, appraisalID string, changes GoalChanges, opts ...CommandOption) (AppraisalView, error) {
	rec, ledger, err := s.openLedger(ctx, actor, appraisalID, opts)
	if err != nil {
		return AppraisalView{}, err
	}
	for _, id := range changes.Removed {
		if err := ledger.StageRemove(id); err != nil {
			return AppraisalView{}, err
		}
	}
	for _, u := range changes.Updated {
		if err := ledger.StageUpdate(u.ID, u.Goal); err != nil {
			return AppraisalView{}, err
		}
	}
	for _, g := range ledger.Updated() {
		if err := ledger.CheckCapacity(g.ID, g.Goal.Weightage); err != nil {
			return AppraisalView{}, err
		}
	}
	for _, g := range changes.Added {
		if err := s.stageNew(ledger, g.LocalID, g.Goal); err != nil {
			return AppraisalView{}, err
		}
	}
	return s.commitLedger(ctx, actor, rec, ledger)
}

// ImportTemplates stages one new goal per template and commits them.
func (s *Service) ImportTemplates(ctx context.Context, actor Actor, appraisalID string, templateIDs []string, opts ...CommandOption) (AppraisalView, error) {
	if len(templateIDs) == 0 {
		return AppraisalView{}, fmt.Errorf("%w: no templates selected", ErrTemplateNotFound)
	}
	rec, ledger, err := s.openLedger(ctx, actor, appraisalID, opts)
	if err != nil {
		return AppraisalView{}, err
	}
	found, err := s.store.ListTemplates(ctx, actor.TenantID, templateIDs)
	if err != nil {
		return AppraisalView{}, err
	}
	byID := map[string]GoalTemplate{}
	for _, t := range FilterTemplates(found, actor) {
		byID[t.Template.ID] = t.Template
	}
	for _, id := range templateIDs {
		t, ok := byID[id]
		if !ok {
			return AppraisalView{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
		}
		if err := s.stageNew(ledger, "", t.ToGoal()); err != nil {
			return AppraisalView{}, err
		}
	}
	return s.commitLedger(ctx, actor, rec, ledger)
}

func (s *Service) Submit(ctx context.Context, actor Actor, appraisalID string, opts ...CommandOption) (AppraisalView, error) {
	rec, rel, err := s.loadForCommand(ctx, actor, appraisalID, opts)
	if err != nil {
		return AppraisalView{}, err
	}
	return s.transition(ctx, actor, rec, rel, StatusSubmitted, nil)
}

// Acknowledge is the appraisee accepting the submitted goals.
func (s *Service) Acknowledge(ctx context.Context, actor Actor, appraisalID string, opts ...CommandOption) (AppraisalView, error) {
	rec, rel, err := s.loadForCommand(ctx, actor, appraisalID, opts)
	if err != nil {
		return AppraisalView{}, err
	}
	return s.transition(ctx, actor, rec, rel, StatusSelfAssessment, nil)
}

func (s *Service) RecordSelfAssessment(ctx context.Context, actor Actor, appraisalID string, perGoal map[string]Assessment, opts ...CommandOption) (AppraisalView, error) {
	rec, rel, err := s.loadForCommand(ctx, actor, appraisalID, opts)
	if err != nil {
		return AppraisalView{}, err
	}
	if err := checkActor(rec.Appraisal.Status, StatusAppraiserEvaluation, rel); err != nil {
		return AppraisalView{}, err
	}
	goals, err := applySelfAssessments(rec.Goals, perGoal)
	if err != nil {
		return AppraisalView{}, err
	}
	rec.Goals = goals
	return s.transition(ctx, actor, rec, rel, StatusAppraiserEvaluation, func(tx StoreAPI) error {
		return tx.RecordSelfAssessment(ctx, rec.Appraisal.ID, goals)
	})
}

func (s *Service) RecordAppraiserEvaluation(ctx context.Context, actor Actor, appraisalID string, perGoal map[string]Assessment, overallRating int, overallComment string, opts ...CommandOption) (AppraisalView, error) {
	rec, rel, err := s.loadForCommand(ctx, actor, appraisalID, opts)
	if err != nil {
		return AppraisalView{}, err
	}
	if err := checkActor(rec.Appraisal.Status, StatusReviewerEvaluation, rel); err != nil {
		return AppraisalView{}, err
	}
	goals, err := applyAppraiserAssessments(rec.Goals, perGoal)
	if err != nil {
		return AppraisalView{}, err
	}
	rec.Goals = goals
	rec.Appraisal.AppraiserOverallRating = overallRating
	rec.Appraisal.AppraiserOverallComments = strings.TrimSpace(overallComment)
	return s.transition(ctx, actor, rec, rel, StatusReviewerEvaluation, func(tx StoreAPI) error {
		return tx.RecordAppraiserEvaluation(ctx, rec.Appraisal.ID, goals, overallRating, rec.Appraisal.AppraiserOverallComments)
	})
}

func (s *Service) RecordReviewerEvaluation(ctx context.Context, actor Actor, appraisalID string, overallRating int, overallComment string, opts ...CommandOption) (AppraisalView, error) {
	rec, rel, err := s.loadForCommand(ctx, actor, appraisalID, opts)
	if err != nil {
		return AppraisalView{}, err
	}
	if err := checkActor(rec.Appraisal.Status, StatusComplete, rel); err != nil {
		return AppraisalView{}, err
	}
	rec.Appraisal.ReviewerOverallRating = overallRating
	rec.Appraisal.ReviewerOverallComments = strings.TrimSpace(overallComment)
	return s.transition(ctx, actor, rec, rel, StatusComplete, func(tx StoreAPI) error {
		return tx.RecordReviewerEvaluation(ctx, rec.Appraisal.ID, overallRating, rec.Appraisal.ReviewerOverallComments)
	})
}

func (s *Service) AccessView(ctx context.Context, actor Actor, appraisalID string) (AccessView, error) {
	rec, rel, err := s.loadVisible(ctx, actor, appraisalID)
	if err != nil {
		return AccessView{}, err
	}
	return ResolveAccess(rec.Appraisal.Status, rel), nil
}

func (s *Service) WeightageSummary(ctx context.Context, actor Actor, appraisalID string) (WeightageSummary, error) {
	rec, rel, err := s.loadVisible(ctx, actor, appraisalID)
	if err != nil {
		return WeightageSummary{}, err
	}
	if !ResolveAccess(rec.Appraisal.Status, rel).GoalList.Visible() {
		return WeightageSummary{}, fmt.Errorf("%w: goals are not visible yet", ErrAccessDenied)
	}
	total := SumWeightage(rec.Goals)
	return WeightageSummary{Total: total, Remaining: RequiredWeightage - total}, nil
}

func (s *Service) Get(ctx context.Context, actor Actor, appraisalID string) (AppraisalView, error) {
	rec, rel, err := s.loadVisible(ctx, actor, appraisalID)
	if err != nil {
		return AppraisalView{}, err
	}
	return Redact(rec, rel), nil
}

// List returns the appraisals the actor takes part in, with evaluation fields
// the actor may not see blanked.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) ([]Appraisal, error) {
	if actor.EmployeeID == "" {
		return []Appraisal{}, nil
	}
	filter.EmployeeID = actor.EmployeeID
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	items, err := s.store.ListAppraisals(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Appraisal, 0, len(items))
	for _, a := range items {
		view := Redact(Record{Appraisal: a}, RelationshipOf(a, actor.EmployeeID))
		out = append(out, view.Appraisal)
	}
	return out, nil
}

func (s *Service) Scorecard(ctx context.Context, actor Actor, appraisalID string) (Scorecard, error) {
	view, err := s.Get(ctx, actor, appraisalID)
	if err != nil {
		return Scorecard{}, err
	}
	return BuildScorecard(view), nil
}

func (s *Service) VisibleTemplates(ctx context.Context, actor Actor) ([]TemplateWithHeader, error) {
	all, err := s.store.ListTemplates(ctx, actor.TenantID, nil)
	if err != nil {
		return nil, err
	}
	return FilterTemplates(all, actor), nil
}

// RemindStale notifies the pending participant of every appraisal that has
// not moved for staleAfter. An appraisal is reminded at most once per
// staleAfter window. It returns the number of reminders sent.
func (s *Service) RemindStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	now := s.now()
	stale, err := s.store.StaleAppraisals(ctx, now.Add(-staleAfter), limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, a := range stale {
		rel, ok := PendingActor(a.Status)
		if !ok {
			continue
		}
		p, err := s.store.Participant(ctx, a.TenantID, participantID(a, rel))
		if err != nil {
			slog.Warn("appraisal reminder participant lookup failed", "appraisalId", a.ID, "err", err)
			continue
		}
		if s.notifyParticipant(ctx, p, notifications.TypeAppraisalReminder, "Appraisal reminder",
			fmt.Sprintf("Appraisal %s has been waiting in %s since %s.", a.ID, a.Status, a.StatusChangedAt.Format(time.DateOnly))) {
			sent++
			if err := s.store.MarkReminded(ctx, a.ID, now); err != nil {
				slog.Warn("appraisal reminder mark failed", "appraisalId", a.ID, "err", err)
			}
		}
	}
	return sent, nil
}

func (s *Service) openLedger(ctx context.Context, actor Actor, appraisalID string, opts []CommandOption) (Record, *GoalLedger, error) {
	rec, rel, err := s.loadForCommand(ctx, actor, appraisalID, opts)
	if err != nil {
		return Record{}, nil, err
	}
	if err := EnsureGoalsMutable(rec.Appraisal.Status); err != nil {
		return Record{}, nil, err
	}
	if rel != RelationshipAppraiser {
		return Record{}, nil, fmt.Errorf("%w: only the appraiser edits goals", ErrAccessDenied)
	}
	return rec, NewGoalLedger(rec.Appraisal.ID, rec.Appraisal.Status, rec.Goals), nil
}

func (s *Service) stageNew(ledger *GoalLedger, localID string, goal Goal) error {
	key := localID
	if key == "" {
		key = goal.Title
	}
	if err := validateWeightage(key, goal.Weightage); err != nil {
		return err
	}
	if remaining := ledger.RemainingForAdd(localID); goal.Weightage > remaining {
		return &CapacityExceededError{GoalKey: key, Requested: goal.Weightage, Remaining: remaining}
	}
	_, err := ledger.StageAdd(AppraisalGoal{LocalID: localID, Goal: goal})
	return err
}

func (s *Service) commitLedger(ctx context.Context, actor Actor, rec Record, ledger *GoalLedger) (AppraisalView, error) {
	rel := RelationshipOf(rec.Appraisal, actor.EmployeeID)
	if !ledger.Pending() {
		return Redact(rec, rel), nil
	}
	now := s.now()
	err := s.store.WithTx(ctx, func(tx StoreAPI) error {
		if err := tx.TouchVersion(ctx, actor.TenantID, rec.Appraisal.ID, rec.Appraisal.Version, now); err != nil {
			return err
		}
		return ledger.Commit(ctx, tx)
	})
	if err != nil {
		return AppraisalView{}, err
	}
	rec.Goals = ledger.Effective()
	rec.Appraisal.Version++
	rec.Appraisal.UpdatedAt = now
	slog.Info("appraisal goals saved", "appraisalId", rec.Appraisal.ID, "goals", len(rec.Goals), "weightage", SumWeightage(rec.Goals))
	return Redact(rec, rel), nil
}

func (s *Service) transition(ctx context.Context, actor Actor, rec Record, rel Relationship, to Status, persist func(tx StoreAPI) error) (AppraisalView, error) {
	if err := CheckTransition(rec, to, rel); err != nil {
		return AppraisalView{}, err
	}
	from := rec.Appraisal.Status
	now := s.now()
	err := s.store.WithTx(ctx, func(tx StoreAPI) error {
		if persist != nil {
			if err := persist(tx); err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, actor.TenantID, rec.Appraisal.ID, from, to, rec.Appraisal.Version, now)
	})
	if err != nil {
		return AppraisalView{}, err
	}

	rec.Appraisal.Status = to
	rec.Appraisal.Version++
	rec.Appraisal.UpdatedAt = now
	rec.Appraisal.StatusChangedAt = now
	slog.Info("appraisal transition", "appraisalId", rec.Appraisal.ID, "from", from, "to", to)
	if s.Metrics != nil {
		s.Metrics.RecordTransition(string(from), string(to))
	}
	s.notifyNext(ctx, rec.Appraisal)
	return Redact(rec, rel), nil
}

func (s *Service) loadForCommand(ctx context.Context, actor Actor, appraisalID string, opts []CommandOption) (Record, Relationship, error) {
	var o commandOptions
	for _, opt := range opts {
		opt(&o)
	}
	rec, rel, err := s.loadVisible(ctx, actor, appraisalID)
	if err != nil {
		return Record{}, "", err
	}
	if o.expectedVersion > 0 && o.expectedVersion != rec.Appraisal.Version {
		return Record{}, "", fmt.Errorf("%w: expected version %d, current %d", ErrStaleVersion, o.expectedVersion, rec.Appraisal.Version)
	}
	return rec, rel, nil
}

// loadVisible loads an appraisal the actor participates in.
func (s *Service) loadVisible(ctx context.Context, actor Actor, appraisalID string) (Record, Relationship, error) {
	rec, err := s.store.LoadAppraisal(ctx, actor.TenantID, appraisalID)
	if err != nil {
		return Record{}, "", err
	}
	rel := RelationshipOf(rec.Appraisal, actor.EmployeeID)
	if rel == RelationshipOther {
		return Record{}, "", fmt.Errorf("%w: not a participant", ErrAccessDenied)
	}
	return rec, rel, nil
}

func (s *Service) participants(ctx context.Context, tenantID string, ids ...string) ([]Participant, error) {
	out := make([]Participant, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			p, err := s.store.Participant(gctx, tenantID, id)
			if err != nil {
				return fmt.Errorf("participant %s: %w", id, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) notifyNext(ctx context.Context, a Appraisal) {
	if s.Notify == nil {
		return
	}
	rel, pending := PendingActor(a.Status)
	ntype := notifications.TypeAppraisalPending
	title := "Appraisal awaiting your action"
	body := fmt.Sprintf("Appraisal %s moved to %s.", a.ID, a.Status)
	if !pending {
		rel = RelationshipAppraisee
		ntype = notifications.TypeAppraisalCompleted
		title = "Appraisal complete"
		body = fmt.Sprintf("Appraisal %s is complete.", a.ID)
	}
	p, err := s.store.Participant(ctx, a.TenantID, participantID(a, rel))
	if err != nil {
		slog.Warn("appraisal notification participant lookup failed", "appraisalId", a.ID, "err", err)
		return
	}
	s.notifyParticipant(ctx, p, ntype, title, body)
}

func (s *Service) notifyParticipant(ctx context.Context, p Participant, ntype, title, body string) bool {
	if s.Notify == nil || p.UserID == "" {
		return false
	}
	if err := s.Notify.Create(ctx, p.TenantID, p.UserID, ntype, title, body); err != nil {
		slog.Warn("appraisal notification failed", "type", ntype, "err", err)
		return false
	}
	return true
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func participantID(a Appraisal, rel Relationship) string {
	switch rel {
	case RelationshipAppraisee:
		return a.AppraiseeID
	case RelationshipAppraiser:
		return a.AppraiserID
	case RelationshipReviewer:
		return a.ReviewerID
	}
	return ""
}
