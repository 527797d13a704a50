package appraisal

import "fmt"

// Precondition inspects an appraisal and its goals before a transition.
type Precondition func(rec Record) error

type TransitionRule struct {
	From  Status
	To    Status
	Actor Relationship
	Check Precondition
}

var transitionRules = map[Status]TransitionRule{
	StatusDraft: {
		From:  StatusDraft,
		To:    StatusSubmitted,
		Actor: RelationshipAppraiser,
		Check: checkWeightage,
	},
	StatusSubmitted: {
		From:  StatusSubmitted,
		To:    StatusSelfAssessment,
		Actor: RelationshipAppraisee,
	},
	StatusSelfAssessment: {
		From:  StatusSelfAssessment,
		To:    StatusAppraiserEvaluation,
		Actor: RelationshipAppraisee,
		Check: checkSelfAssessment,
	},
	StatusAppraiserEvaluation: {
		From:  StatusAppraiserEvaluation,
		To:    StatusReviewerEvaluation,
		Actor: RelationshipAppraiser,
		Check: checkAppraiserEvaluation,
	},
	StatusReviewerEvaluation: {
		From:  StatusReviewerEvaluation,
		To:    StatusComplete,
		Actor: RelationshipReviewer,
		Check: checkReviewerEvaluation,
	},
}

func (s Status) Index() int {
	for i, candidate := range Sequence {
		if candidate == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool {
	return s.Index() >= 0
}

// Next returns the immediate successor. Complete has none.
func (s Status) Next() (Status, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(Sequence) {
		return "", false
	}
	return Sequence[idx+1], true
}

// After reports whether s comes strictly later in the sequence than other.
func (s Status) After(other Status) bool {
	return s.Valid() && other.Valid() && s.Index() > other.Index()
}

func ParseStatus(value string) (Status, error) {
	status := Status(value)
	if !status.Valid() {
		return "", fmt.Errorf("unknown appraisal status %q", value)
	}
	return status, nil
}

// ValidateTransition accepts only the immediate successor of from.
func ValidateTransition(from, to Status) error {
	next, ok := from.Next()
	if !ok || next != to {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

func RuleFor(from Status) (TransitionRule, bool) {
	rule, ok := transitionRules[from]
	return rule, ok
}

// PendingActor returns who must act next for an appraisal in status s.
func PendingActor(s Status) (Relationship, bool) {
	rule, ok := transitionRules[s]
	if !ok {
		return "", false
	}
	return rule.Actor, true
}

// CheckTransition validates the sequence, the acting relationship and the
// rule's precondition, in that order.
func CheckTransition(rec Record, to Status, rel Relationship) error {
	if err := checkActor(rec.Appraisal.Status, to, rel); err != nil {
		return err
	}
	if rule := transitionRules[rec.Appraisal.Status]; rule.Check != nil {
		return rule.Check(rec)
	}
	return nil
}

func checkActor(from, to Status, rel Relationship) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	rule := transitionRules[from]
	if rel != rule.Actor {
		return fmt.Errorf("%w: %s to %s is performed by the %s", ErrAccessDenied, from, to, rule.Actor)
	}
	return nil
}

func EnsureGoalsMutable(status Status) error {
	if status != StatusDraft {
		return fmt.Errorf("%w (status %s)", ErrGoalsLocked, status)
	}
	return nil
}

func checkWeightage(rec Record) error {
	total := SumWeightage(rec.Goals)
	if total != RequiredWeightage {
		return &WeightageMismatchError{Current: total, Required: RequiredWeightage}
	}
	return nil
}
