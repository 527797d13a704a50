package appraisal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrWeightageMismatch     = errors.New("goal weightage must total 100")
	ErrInvalidWeightage      = errors.New("goal weightage must be between 1 and 100")
	ErrCapacityExceeded      = errors.New("goal weightage exceeds remaining capacity")
	ErrGoalsLocked           = errors.New("goals can only change while the appraisal is a draft")
	ErrIncompleteEvaluation  = errors.New("evaluation is incomplete")
	ErrParticipantConstraint = errors.New("appraisal participants violate role constraints")
	ErrInvalidPeriod         = errors.New("appraisal period end is before start")
	ErrNotFound              = errors.New("appraisal not found")
	ErrGoalNotFound          = errors.New("goal not found on appraisal")
	ErrTemplateNotFound      = errors.New("goal template not found")
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrAccessDenied          = errors.New("not allowed for this appraisal")
	ErrStaleVersion          = errors.New("appraisal was modified by another request")
	ErrNotComplete           = errors.New("appraisal is not complete")
)

// TransitionError reports a status change outside the fixed sequence.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type WeightageMismatchError struct {
	Current  int
	Required int
}

func (e *WeightageMismatchError) Error() string {
	return fmt.Sprintf("goal weightage must total %d%%, currently at %d%%", e.Required, e.Current)
}

func (e *WeightageMismatchError) Unwrap() error {
	return ErrWeightageMismatch
}

type InvalidWeightageError struct {
	GoalKey   string
	Weightage int
}

func (e *InvalidWeightageError) Error() string {
	return fmt.Sprintf("goal %s weightage %d is outside %d-%d", e.GoalKey, e.Weightage, MinWeightage, MaxWeightage)
}

func (e *InvalidWeightageError) Unwrap() error {
	return ErrInvalidWeightage
}

type CapacityExceededError struct {
	GoalKey   string
	Requested int
	Remaining int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("goal %s weightage %d exceeds remaining capacity %d", e.GoalKey, e.Requested, e.Remaining)
}

func (e *CapacityExceededError) Unwrap() error {
	return ErrCapacityExceeded
}

// IncompleteEvaluationError lists every missing field at a transition boundary.
type IncompleteEvaluationError struct {
	Stage   Status
	Missing []string
}

func (e *IncompleteEvaluationError) Error() string {
	return fmt.Sprintf("%s incomplete: %s", e.Stage, strings.Join(e.Missing, ", "))
}

func (e *IncompleteEvaluationError) Unwrap() error {
	return ErrIncompleteEvaluation
}

type ParticipantError struct {
	Reason string
}

func (e *ParticipantError) Error() string {
	return "participant constraint violated: " + e.Reason
}

func (e *ParticipantError) Unwrap() error {
	return ErrParticipantConstraint
}

// IsClientError reports whether err was caused by the request rather than by
// persistence.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrWeightageMismatch) ||
		errors.Is(err, ErrInvalidWeightage) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrGoalsLocked) ||
		errors.Is(err, ErrIncompleteEvaluation) ||
		errors.Is(err, ErrParticipantConstraint) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrStaleVersion) ||
		errors.Is(err, ErrNotComplete)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrGoalNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrParticipantNotFound)
}
