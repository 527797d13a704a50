package notifications

import "time"

const (
	TypeAppraisalAssigned  = "appraisal_assigned"
	TypeAppraisalPending   = "appraisal_pending"
	TypeAppraisalCompleted = "appraisal_completed"
	TypeAppraisalReminder  = "appraisal_reminder"
)

type Notification struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"-"`
	UserID    string     `json:"-"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
