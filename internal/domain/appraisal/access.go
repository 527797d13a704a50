package appraisal

// AccessView is the visibility of each field group for one viewer.
type AccessView struct {
	SelfAssessment      Access `json:"selfAssessment"`
	AppraiserEvaluation Access `json:"appraiserEvaluation"`
	ReviewerEvaluation  Access `json:"reviewerEvaluation"`
	GoalList            Access `json:"goalList"`
}

func ResolveAccess(status Status, rel Relationship) AccessView {
	return AccessView{
		SelfAssessment:      selfAssessmentAccess(status, rel),
		AppraiserEvaluation: appraiserEvaluationAccess(status, rel),
		ReviewerEvaluation:  reviewerEvaluationAccess(status, rel),
		GoalList:            goalListAccess(status, rel),
	}
}

func goalListAccess(status Status, rel Relationship) Access {
	switch {
	case status == StatusDraft && rel == RelationshipAppraisee:
		return AccessHidden
	case status == StatusDraft && rel == RelationshipAppraiser:
		return AccessEditable
	default:
		return AccessReadOnly
	}
}

func selfAssessmentAccess(status Status, rel Relationship) Access {
	switch {
	case status == StatusDraft || status == StatusSubmitted:
		return AccessHidden
	case status == StatusSelfAssessment && rel == RelationshipAppraisee:
		return AccessEditable
	default:
		return AccessReadOnly
	}
}

// Appraiser-authored content never reaches the appraisee before completion.
func appraiserEvaluationAccess(status Status, rel Relationship) Access {
	switch status {
	case StatusAppraiserEvaluation:
		if rel == RelationshipAppraiser {
			return AccessEditable
		}
	case StatusReviewerEvaluation:
		if rel != RelationshipAppraisee {
			return AccessReadOnly
		}
	case StatusComplete:
		return AccessReadOnly
	}
	return AccessHidden
}

// Reviewer-authored content is visible only to its author before completion.
func reviewerEvaluationAccess(status Status, rel Relationship) Access {
	switch {
	case status == StatusReviewerEvaluation && rel == RelationshipReviewer:
		return AccessEditable
	case status == StatusComplete:
		return AccessReadOnly
	default:
		return AccessHidden
	}
}

// RelationshipOf derives the viewer's relationship from the participant ids.
func RelationshipOf(a Appraisal, employeeID string) Relationship {
	switch {
	case employeeID == "":
		return RelationshipOther
	case employeeID == a.AppraiseeID:
		return RelationshipAppraisee
	case employeeID == a.AppraiserID:
		return RelationshipAppraiser
	case employeeID == a.ReviewerID:
		return RelationshipReviewer
	default:
		return RelationshipOther
	}
}

// AppraisalView is a record with every field group the viewer may not see
// stripped out.
type AppraisalView struct {
	Appraisal    Appraisal       `json:"appraisal"`
	Goals        []AppraisalGoal `json:"goals"`
	Access       AccessView      `json:"access"`
	Relationship Relationship    `json:"relationship"`
}

func Redact(rec Record, rel Relationship) AppraisalView {
	view := ResolveAccess(rec.Appraisal.Status, rel)
	a := rec.Appraisal
	if !view.AppraiserEvaluation.Visible() {
		a.AppraiserOverallRating = 0
		a.AppraiserOverallComments = ""
	}
	if !view.ReviewerEvaluation.Visible() {
		a.ReviewerOverallRating = 0
		a.ReviewerOverallComments = ""
	}

	goals := []AppraisalGoal{}
	if view.GoalList.Visible() {
		for _, goal := range rec.Goals {
			if !view.SelfAssessment.Visible() {
				goal.SelfComment = ""
				goal.SelfRating = 0
			}
			if !view.AppraiserEvaluation.Visible() {
				goal.AppraiserComment = ""
				goal.AppraiserRating = 0
			}
			goals = append(goals, goal)
		}
	}
	return AppraisalView{Appraisal: a, Goals: goals, Access: view, Relationship: rel}
}
