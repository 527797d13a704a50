package appraisal

// Status is an appraisal's position in the review sequence.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusSubmitted           Status = "submitted"
	StatusSelfAssessment      Status = "self_assessment"
	StatusAppraiserEvaluation Status = "appraiser_evaluation"
	StatusReviewerEvaluation  Status = "reviewer_evaluation"
	StatusComplete            Status = "complete"
)

// Sequence is the only order in which an appraisal may progress.
var Sequence = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusSelfAssessment,
	StatusAppraiserEvaluation,
	StatusReviewerEvaluation,
	StatusComplete,
}

// Relationship is the viewer's relationship to one appraisal.
type Relationship string

const (
	RelationshipAppraisee Relationship = "appraisee"
	RelationshipAppraiser Relationship = "appraiser"
	RelationshipReviewer  Relationship = "reviewer"
	RelationshipOther     Relationship = "other"
)

// Access is the level at which a field group is exposed to a viewer.
type Access string

const (
	AccessHidden   Access = "hidden"
	AccessReadOnly Access = "read_only"
	AccessEditable Access = "editable"
)

func (a Access) Visible() bool {
	return a == AccessReadOnly || a == AccessEditable
}

type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh:
		return true
	}
	return false
}

type TemplateVisibility string

const (
	VisibilityOrganization TemplateVisibility = "organization"
	VisibilitySelf         TemplateVisibility = "self"
)

const (
	RequiredWeightage = 100
	MinWeightage      = 1
	MaxWeightage      = 100

	MinRating = 1
	MaxRating = 5
)
