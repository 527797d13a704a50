package appraisal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GoalPersister applies committed goal changes. Implementations are usually
// a StoreAPI bound to a transaction.
type GoalPersister interface {
	AddGoal(ctx context.Context, appraisalID string, goal AppraisalGoal) (string, error)
	UpdateGoal(ctx context.Context, goal AppraisalGoal) error
	RemoveGoal(ctx context.Context, appraisalID, goalID string) error
}

// GoalLedger holds one editing session's staged goal changes for a single
// appraisal. It is not safe for concurrent use.
type GoalLedger struct {
	appraisalID string
	status      Status

	originals []AppraisalGoal
	added     []AppraisalGoal
	updated   map[string]AppraisalGoal
	removed   map[string]struct{}

	// insertion order for deterministic commits
	updateOrder []string
	removeOrder []string
}

func NewGoalLedger(appraisalID string, status Status, originals []AppraisalGoal) *GoalLedger {
	snapshot := make([]AppraisalGoal, len(originals))
	copy(snapshot, originals)
	return &GoalLedger{
		appraisalID: appraisalID,
		status:      status,
		originals:   snapshot,
		updated:     map[string]AppraisalGoal{},
		removed:     map[string]struct{}{},
	}
}

func (l *GoalLedger) Status() Status {
	return l.status
}

// StageAdd stages a new goal under goal.LocalID, generating one when blank.
// Staging an already staged LocalID replaces that entry in place.
func (l *GoalLedger) StageAdd(goal AppraisalGoal) (string, error) {
	if err := EnsureGoalsMutable(l.status); err != nil {
		return "", err
	}
	if goal.LocalID == "" {
		goal.LocalID = uuid.NewString()
	}
	if err := validateWeightage(goal.LocalID, goal.Goal.Weightage); err != nil {
		return "", err
	}
	goal.ID = ""
	goal.AppraisalID = l.appraisalID
	for i := range l.added {
		if l.added[i].LocalID == goal.LocalID {
			l.added[i] = goal
			return goal.LocalID, nil
		}
	}
	l.added = append(l.added, goal)
	return goal.LocalID, nil
}

// StageUpdate replaces the goal data of a staged or persisted goal. Rating
// and comment fields of persisted goals are preserved.
func (l *GoalLedger) StageUpdate(goalID string, goal Goal) error {
	if err := EnsureGoalsMutable(l.status); err != nil {
		return err
	}
	if err := validateWeightage(goalID, goal.Weightage); err != nil {
		return err
	}
	for i := range l.added {
		if l.added[i].LocalID == goalID {
			l.added[i].Goal = goal
			return nil
		}
	}
	original, ok := l.original(goalID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	if _, gone := l.removed[goalID]; gone {
		return fmt.Errorf("%w: %s was removed", ErrGoalNotFound, goalID)
	}
	if _, exists := l.updated[goalID]; !exists {
		l.updateOrder = append(l.updateOrder, goalID)
	}
	original.Goal = goal
	l.updated[goalID] = original
	return nil
}

// StageRemove marks a persisted goal for deletion or drops a staged one.
func (l *GoalLedger) StageRemove(goalID string) error {
	if err := EnsureGoalsMutable(l.status); err != nil {
		return err
	}
	for i := range l.added {
		if l.added[i].LocalID == goalID {
			l.added = append(l.added[:i], l.added[i+1:]...)
			return nil
		}
	}
	if _, ok := l.original(goalID); !ok {
		return fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	if _, exists := l.updated[goalID]; exists {
		delete(l.updated, goalID)
		l.updateOrder = removeKey(l.updateOrder, goalID)
	}
	if _, exists := l.removed[goalID]; !exists {
		l.removed[goalID] = struct{}{}
		l.removeOrder = append(l.removeOrder, goalID)
	}
	return nil
}

// Effective returns the goal set as it would be after commit: originals in
// order minus removed with updates applied, then staged additions.
func (l *GoalLedger) Effective() []AppraisalGoal {
	out := make([]AppraisalGoal, 0, len(l.originals)+len(l.added))
	for _, goal := range l.originals {
		if _, gone := l.removed[goal.ID]; gone {
			continue
		}
		if updated, ok := l.updated[goal.ID]; ok {
			goal = updated
		}
		out = append(out, goal)
	}
	return append(out, l.added...)
}

func (l *GoalLedger) TotalWeightage() int {
	return SumWeightage(l.Effective())
}

// Remaining is the capacity left for excludeID once every other goal is
// counted. An empty or unknown excludeID excludes nothing.
func (l *GoalLedger) Remaining(excludeID string) int {
	return RequiredWeightage - (l.TotalWeightage() - l.weightOf(excludeID))
}

// CheckCapacity rejects a weightage for goalID that would push the effective
// total above 100. The goal's own current weight is not counted against it.
func (l *GoalLedger) CheckCapacity(goalID string, weightage int) error {
	remaining := l.Remaining(goalID)
	if weightage > remaining {
		return &CapacityExceededError{GoalKey: goalID, Requested: weightage, Remaining: remaining}
	}
	return nil
}

// RemainingForAdd is the capacity left for a new goal staged under localID.
// Only a staged addition with that LocalID is excluded, never a persisted
// goal whose ID happens to match.
func (l *GoalLedger) RemainingForAdd(localID string) int {
	staged := 0
	for _, goal := range l.added {
		if localID != "" && goal.LocalID == localID {
			staged = goal.Goal.Weightage
		}
	}
	return RequiredWeightage - (l.TotalWeightage() - staged)
}

func (l *GoalLedger) Added() []AppraisalGoal {
	out := make([]AppraisalGoal, len(l.added))
	copy(out, l.added)
	return out
}

func (l *GoalLedger) Updated() []AppraisalGoal {
	out := make([]AppraisalGoal, 0, len(l.updateOrder))
	for _, id := range l.updateOrder {
		out = append(out, l.updated[id])
	}
	return out
}

func (l *GoalLedger) Removed() []string {
	out := make([]string, len(l.removeOrder))
	copy(out, l.removeOrder)
	return out
}

func (l *GoalLedger) Pending() bool {
	return len(l.added) > 0 || len(l.updateOrder) > 0 || len(l.removeOrder) > 0
}

// Discard drops every staged change.
func (l *GoalLedger) Discard() {
	l.added = nil
	l.updated = map[string]AppraisalGoal{}
	l.removed = map[string]struct{}{}
	l.updateOrder = nil
	l.removeOrder = nil
}

// Commit applies removals, updates and additions in that order. On error the
// staged state is left untouched so the same commit can be retried.
func (l *GoalLedger) Commit(ctx context.Context, p GoalPersister) error {
	if err := EnsureGoalsMutable(l.status); err != nil {
		return err
	}
	for _, id := range l.removeOrder {
		if err := p.RemoveGoal(ctx, l.appraisalID, id); err != nil {
			return err
		}
	}
	for _, id := range l.updateOrder {
		if err := p.UpdateGoal(ctx, l.updated[id]); err != nil {
			return err
		}
	}

	effective := l.Effective()
	kept := len(effective) - len(l.added)
	next := l.nextPosition()
	ids := make([]string, len(l.added))
	for i, goal := range l.added {
		goal.Position = next + i
		id, err := p.AddGoal(ctx, l.appraisalID, goal)
		if err != nil {
			return err
		}
		ids[i] = id
	}
	for i := range l.added {
		effective[kept+i].ID = ids[i]
		effective[kept+i].LocalID = ""
		effective[kept+i].Position = next + i
	}

	l.originals = effective
	l.Discard()
	return nil
}

func (l *GoalLedger) original(goalID string) (AppraisalGoal, bool) {
	if goalID == "" {
		return AppraisalGoal{}, false
	}
	for _, goal := range l.originals {
		if goal.ID == goalID {
			return goal, true
		}
	}
	return AppraisalGoal{}, false
}

func (l *GoalLedger) weightOf(goalID string) int {
	if goalID == "" {
		return 0
	}
	for _, goal := range l.Effective() {
		if goal.Key() == goalID {
			return goal.Goal.Weightage
		}
	}
	return 0
}

func (l *GoalLedger) nextPosition() int {
	next := 0
	for _, goal := range l.originals {
		if goal.Position >= next {
			next = goal.Position + 1
		}
	}
	return next
}

func validateWeightage(key string, weightage int) error {
	if weightage < MinWeightage || weightage > MaxWeightage {
		return &InvalidWeightageError{GoalKey: key, Weightage: weightage}
	}
	return nil
}

func removeKey(keys []string, key string) []string {
	for i, candidate := range keys {
		if candidate == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
