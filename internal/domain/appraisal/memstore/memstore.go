// Package memstore keeps appraisals in process memory. It backs tests and the
// memory:// development mode.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"appraisal/internal/domain/appraisal"
)

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	appraisals   map[string]appraisal.Appraisal
	goals        map[string][]appraisal.AppraisalGoal
	participants map[string]appraisal.Participant
	reminded     map[string]time.Time
	templates    []appraisal.TemplateWithHeader
	failures     map[string]error
}

func New() *Store {
	return &Store{
		appraisals:   map[string]appraisal.Appraisal{},
		goals:        map[string][]appraisal.AppraisalGoal{},
		participants: map[string]appraisal.Participant{},
		reminded:     map[string]time.Time{},
		failures:     map[string]error{},
	}
}

func (s *Store) AddParticipant(p appraisal.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.TenantID+"/"+p.EmployeeID] = p
}

func (s *Store) AddTemplate(t appraisal.TemplateWithHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t)
}

func (s *Store) SaveParticipant(_ context.Context, p appraisal.Participant) error {
	s.AddParticipant(p)
	return nil
}

func (s *Store) SaveTemplate(_ context.Context, t appraisal.TemplateWithHeader) error {
	s.AddTemplate(t)
	return nil
}

// FailOn makes the next call to the named method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// Put stores an appraisal as-is, bypassing every rule. Tests use it to start
// from an arbitrary status.
func (s *Store) Put(rec appraisal.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appraisals[rec.Appraisal.ID] = rec.Appraisal
	s.goals[rec.Appraisal.ID] = slices.Clone(rec.Goals)
}

func (s *Store) failure(method string) error {
	err, ok := s.failures[method]
	if ok {
		delete(s.failures, method)
	}
	return err
}

// WithTx serialises transactions and restores the previous state when fn
// fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx appraisal.StoreAPI) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	savedAppraisals := make(map[string]appraisal.Appraisal, len(s.appraisals))
	for k, v := range s.appraisals {
		savedAppraisals[k] = v
	}
	savedGoals := make(map[string][]appraisal.AppraisalGoal, len(s.goals))
	for k, v := range s.goals {
		savedGoals[k] = slices.Clone(v)
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.appraisals = savedAppraisals
		s.goals = savedGoals
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Participant(_ context.Context, tenantID, employeeID string) (appraisal.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("Participant"); err != nil {
		return appraisal.Participant{}, err
	}
	p, ok := s.participants[tenantID+"/"+employeeID]
	if !ok {
		return appraisal.Participant{}, fmt.Errorf("%w: %s", appraisal.ErrParticipantNotFound, employeeID)
	}
	return p, nil
}

func (s *Store) CreateAppraisal(_ context.Context, a appraisal.Appraisal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateAppraisal"); err != nil {
		return "", err
	}
	a.ID = uuid.NewString()
	s.appraisals[a.ID] = a
	return a.ID, nil
}

func (s *Store) LoadAppraisal(_ context.Context, tenantID, appraisalID string) (appraisal.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("LoadAppraisal"); err != nil {
		return appraisal.Record{}, err
	}
	a, ok := s.appraisals[appraisalID]
	if !ok || a.TenantID != tenantID {
		return appraisal.Record{}, appraisal.ErrNotFound
	}
	goals := slices.Clone(s.goals[appraisalID])
	sort.SliceStable(goals, func(i, j int) bool { return goals[i].Position < goals[j].Position })
	return appraisal.Record{Appraisal: a, Goals: goals}, nil
}

func (s *Store) ListAppraisals(_ context.Context, tenantID string, filter appraisal.ListFilter) ([]appraisal.Appraisal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appraisal.Appraisal
	for _, a := range s.appraisals {
		if a.TenantID != tenantID {
			continue
		}
		if filter.EmployeeID != "" && a.AppraiseeID != filter.EmployeeID && a.AppraiserID != filter.EmployeeID && a.ReviewerID != filter.EmployeeID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (s *Store) UpdateStatus(_ context.Context, tenantID, appraisalID string, from, to appraisal.Status, version int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateStatus"); err != nil {
		return err
	}
	a, ok := s.appraisals[appraisalID]
	if !ok || a.TenantID != tenantID {
		return appraisal.ErrNotFound
	}
	if a.Version != version || a.Status != from {
		return appraisal.ErrStaleVersion
	}
	a.Status = to
	a.Version++
	a.UpdatedAt = at
	a.StatusChangedAt = at
	s.appraisals[appraisalID] = a
	return nil
}

func (s *Store) TouchVersion(_ context.Context, tenantID, appraisalID string, version int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("TouchVersion"); err != nil {
		return err
	}
	a, ok := s.appraisals[appraisalID]
	if !ok || a.TenantID != tenantID {
		return appraisal.ErrNotFound
	}
	if a.Version != version {
		return appraisal.ErrStaleVersion
	}
	a.Version++
	a.UpdatedAt = at
	s.appraisals[appraisalID] = a
	return nil
}

func (s *Store) AddGoal(_ context.Context, appraisalID string, goal appraisal.AppraisalGoal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("AddGoal"); err != nil {
		return "", err
	}
	if _, ok := s.appraisals[appraisalID]; !ok {
		return "", appraisal.ErrNotFound
	}
	goal.ID = uuid.NewString()
	goal.LocalID = ""
	goal.AppraisalID = appraisalID
	s.goals[appraisalID] = append(s.goals[appraisalID], goal)
	return goal.ID, nil
}

func (s *Store) UpdateGoal(_ context.Context, goal appraisal.AppraisalGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdateGoal"); err != nil {
		return err
	}
	goals := s.goals[goal.AppraisalID]
	for i := range goals {
		if goals[i].ID == goal.ID {
			goals[i].Goal = goal.Goal
			return nil
		}
	}
	return fmt.Errorf("%w: %s", appraisal.ErrGoalNotFound, goal.ID)
}

func (s *Store) RemoveGoal(_ context.Context, appraisalID, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RemoveGoal"); err != nil {
		return err
	}
	goals := s.goals[appraisalID]
	for i := range goals {
		if goals[i].ID == goalID {
			s.goals[appraisalID] = append(goals[:i:i], goals[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", appraisal.ErrGoalNotFound, goalID)
}

func (s *Store) RecordSelfAssessment(_ context.Context, appraisalID string, goals []appraisal.AppraisalGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RecordSelfAssessment"); err != nil {
		return err
	}
	return s.mergeGoals(appraisalID, goals, func(dst *appraisal.AppraisalGoal, src appraisal.AppraisalGoal) {
		dst.SelfComment = src.SelfComment
		dst.SelfRating = src.SelfRating
	})
}

func (s *Store) RecordAppraiserEvaluation(_ context.Context, appraisalID string, goals []appraisal.AppraisalGoal, rating int, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RecordAppraiserEvaluation"); err != nil {
		return err
	}
	a, ok := s.appraisals[appraisalID]
	if !ok {
		return appraisal.ErrNotFound
	}
	if err := s.mergeGoals(appraisalID, goals, func(dst *appraisal.AppraisalGoal, src appraisal.AppraisalGoal) {
		dst.AppraiserComment = src.AppraiserComment
		dst.AppraiserRating = src.AppraiserRating
	}); err != nil {
		return err
	}
	a.AppraiserOverallRating = rating
	a.AppraiserOverallComments = comment
	s.appraisals[appraisalID] = a
	return nil
}

func (s *Store) RecordReviewerEvaluation(_ context.Context, appraisalID string, rating int, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RecordReviewerEvaluation"); err != nil {
		return err
	}
	a, ok := s.appraisals[appraisalID]
	if !ok {
		return appraisal.ErrNotFound
	}
	a.ReviewerOverallRating = rating
	a.ReviewerOverallComments = comment
	s.appraisals[appraisalID] = a
	return nil
}

func (s *Store) ListTemplates(_ context.Context, tenantID string, ids []string) ([]appraisal.TemplateWithHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appraisal.TemplateWithHeader
	for _, t := range s.templates {
		if t.Template.TenantID != tenantID {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, t.Template.ID) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) StaleAppraisals(_ context.Context, before time.Time, limit int) ([]appraisal.Appraisal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appraisal.Appraisal
	for _, a := range s.appraisals {
		if a.Status == appraisal.StatusComplete || !a.StatusChangedAt.Before(before) {
			continue
		}
		if at, ok := s.reminded[a.ID]; ok && !at.Before(before) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatusChangedAt.Before(out[j].StatusChangedAt) })
	return page(out, 0, limit), nil
}

func (s *Store) MarkReminded(_ context.Context, appraisalID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("MarkReminded"); err != nil {
		return err
	}
	if _, ok := s.appraisals[appraisalID]; !ok {
		return appraisal.ErrNotFound
	}
	s.reminded[appraisalID] = at
	return nil
}

func (s *Store) mergeGoals(appraisalID string, goals []appraisal.AppraisalGoal, set func(dst *appraisal.AppraisalGoal, src appraisal.AppraisalGoal)) error {
	stored := s.goals[appraisalID]
	for _, src := range goals {
		found := false
		for i := range stored {
			if stored[i].ID == src.ID {
				set(&stored[i], src)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", appraisal.ErrGoalNotFound, src.ID)
		}
	}
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
