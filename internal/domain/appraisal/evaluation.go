package appraisal

import (
	"fmt"
	"strings"
)

func SumWeightage(goals []AppraisalGoal) int {
	total := 0
	for _, goal := range goals {
		total += goal.Goal.Weightage
	}
	return total
}

func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

func checkSelfAssessment(rec Record) error {
	var missing []string
	if len(rec.Goals) == 0 {
		missing = append(missing, "goals")
	}
	for _, goal := range rec.Goals {
		if strings.TrimSpace(goal.SelfComment) == "" {
			missing = append(missing, fmt.Sprintf("goal %s self comment", goal.Key()))
		}
		if !ValidRating(goal.SelfRating) {
			missing = append(missing, fmt.Sprintf("goal %s self rating", goal.Key()))
		}
	}
	if len(missing) > 0 {
		return &IncompleteEvaluationError{Stage: StatusSelfAssessment, Missing: missing}
	}
	return nil
}

func checkAppraiserEvaluation(rec Record) error {
	var missing []string
	if len(rec.Goals) == 0 {
		missing = append(missing, "goals")
	}
	for _, goal := range rec.Goals {
		if strings.TrimSpace(goal.AppraiserComment) == "" {
			missing = append(missing, fmt.Sprintf("goal %s appraiser comment", goal.Key()))
		}
		if !ValidRating(goal.AppraiserRating) {
			missing = append(missing, fmt.Sprintf("goal %s appraiser rating", goal.Key()))
		}
	}
	if !ValidRating(rec.Appraisal.AppraiserOverallRating) {
		missing = append(missing, "appraiser overall rating")
	}
	if strings.TrimSpace(rec.Appraisal.AppraiserOverallComments) == "" {
		missing = append(missing, "appraiser overall comments")
	}
	if len(missing) > 0 {
		return &IncompleteEvaluationError{Stage: StatusAppraiserEvaluation, Missing: missing}
	}
	return nil
}

func checkReviewerEvaluation(rec Record) error {
	var missing []string
	if !ValidRating(rec.Appraisal.ReviewerOverallRating) {
		missing = append(missing, "reviewer overall rating")
	}
	if strings.TrimSpace(rec.Appraisal.ReviewerOverallComments) == "" {
		missing = append(missing, "reviewer overall comments")
	}
	if len(missing) > 0 {
		return &IncompleteEvaluationError{Stage: StatusReviewerEvaluation, Missing: missing}
	}
	return nil
}

// applySelfAssessments returns a copy of goals with the per-goal self fields
// replaced by the submitted assessments.
func applySelfAssessments(goals []AppraisalGoal, perGoal map[string]Assessment) ([]AppraisalGoal, error) {
	return applyAssessments(goals, perGoal, func(goal *AppraisalGoal, a Assessment) {
		goal.SelfComment = strings.TrimSpace(a.Comment)
		goal.SelfRating = a.Rating
	})
}

func applyAppraiserAssessments(goals []AppraisalGoal, perGoal map[string]Assessment) ([]AppraisalGoal, error) {
	return applyAssessments(goals, perGoal, func(goal *AppraisalGoal, a Assessment) {
		goal.AppraiserComment = strings.TrimSpace(a.Comment)
		goal.AppraiserRating = a.Rating
	})
}

func applyAssessments(goals []AppraisalGoal, perGoal map[string]Assessment, set func(*AppraisalGoal, Assessment)) ([]AppraisalGoal, error) {
	index := make(map[string]int, len(goals))
	out := make([]AppraisalGoal, len(goals))
	copy(out, goals)
	for i, goal := range out {
		index[goal.ID] = i
	}
	for goalID, assessment := range perGoal {
		i, ok := index[goalID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
		}
		set(&out[i], assessment)
	}
	return out, nil
}
