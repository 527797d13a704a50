package appraisal

import (
	"time"

	"appraisal/internal/domain/auth"
)

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Appraisal struct {
	ID                       string    `json:"id"`
	TenantID                 string    `json:"tenantId"`
	AppraiseeID              string    `json:"appraiseeId"`
	AppraiserID              string    `json:"appraiserId"`
	ReviewerID               string    `json:"reviewerId"`
	AppraisalTypeID          string    `json:"appraisalTypeId"`
	RangeID                  string    `json:"rangeId,omitempty"`
	Period                   Period    `json:"period"`
	Status                   Status    `json:"status"`
	AppraiserOverallRating   int       `json:"appraiserOverallRating,omitempty"`
	AppraiserOverallComments string    `json:"appraiserOverallComments,omitempty"`
	ReviewerOverallRating    int       `json:"reviewerOverallRating,omitempty"`
	ReviewerOverallComments  string    `json:"reviewerOverallComments,omitempty"`
	Version                  int       `json:"version"`
	CreatedBy                string    `json:"createdBy"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
	StatusChangedAt          time.Time `json:"statusChangedAt"`
}

type Goal struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	PerformanceFactor string     `json:"performanceFactor"`
	Importance        Importance `json:"importance"`
	Weightage         int        `json:"weightage"`
	CategoryID        string     `json:"categoryId"`
	TemplateID        string     `json:"templateId,omitempty"`
}

// AppraisalGoal links one goal to one appraisal. ID is empty until the goal
// has been persisted; LocalID identifies it while it is only staged.
type AppraisalGoal struct {
	ID               string `json:"id,omitempty"`
	LocalID          string `json:"localId,omitempty"`
	AppraisalID      string `json:"appraisalId"`
	Goal             Goal   `json:"goal"`
	SelfComment      string `json:"selfComment,omitempty"`
	SelfRating       int    `json:"selfRating,omitempty"`
	AppraiserComment string `json:"appraiserComment,omitempty"`
	AppraiserRating  int    `json:"appraiserRating,omitempty"`
	Position         int    `json:"position"`
}

// Key returns the identity used by the ledger.
func (g AppraisalGoal) Key() string {
	if g.ID != "" {
		return g.ID
	}
	return g.LocalID
}

// Record is an appraisal together with its persisted goals.
type Record struct {
	Appraisal Appraisal
	Goals     []AppraisalGoal
}

type Participant struct {
	EmployeeID string    `json:"employeeId"`
	TenantID   string    `json:"tenantId"`
	UserID     string    `json:"userId,omitempty"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       auth.Role `json:"role"`
}

// Actor is the identity on whose behalf a command runs.
type Actor struct {
	TenantID   string
	UserID     string
	EmployeeID string
	Role       auth.Role
}

func ActorFromUser(user auth.UserContext) Actor {
	return Actor{
		TenantID:   user.TenantID,
		UserID:     user.UserID,
		EmployeeID: user.EmployeeID,
		Role:       user.Role,
	}
}

type GoalTemplateHeader struct {
	ID         string             `json:"id"`
	TenantID   string             `json:"tenantId"`
	Name       string             `json:"name"`
	Role       auth.Role          `json:"role,omitempty"`
	Visibility TemplateVisibility `json:"visibility"`
	OwnerID    string             `json:"ownerId"`
	SharedWith []string           `json:"sharedWith,omitempty"`
}

type GoalTemplate struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenantId"`
	HeaderID          string     `json:"headerId,omitempty"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	PerformanceFactor string     `json:"performanceFactor"`
	Importance        Importance `json:"importance"`
	Weightage         int        `json:"weightage"`
	CategoryIDs       []string   `json:"categoryIds"`
	OwnerID           string     `json:"ownerId"`
}

// TemplateWithHeader pairs a template with its optional grouping header.
type TemplateWithHeader struct {
	Template GoalTemplate
	Header   *GoalTemplateHeader
}

// ToGoal derives an appraisal goal from the template. The first associated
// category becomes the goal's category.
func (t GoalTemplate) ToGoal() Goal {
	category := ""
	if len(t.CategoryIDs) > 0 {
		category = t.CategoryIDs[0]
	}
	return Goal{
		Title:             t.Title,
		Description:       t.Description,
		PerformanceFactor: t.PerformanceFactor,
		Importance:        t.Importance,
		Weightage:         t.Weightage,
		CategoryID:        category,
		TemplateID:        t.ID,
	}
}

type Assessment struct {
	Comment string `json:"comment"`
	Rating  int    `json:"rating"`
}

type WeightageSummary struct {
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// ListFilter narrows appraisal listings to one participant.
type ListFilter struct {
	EmployeeID string
	Status     Status
	Limit      int
	Offset     int
}
