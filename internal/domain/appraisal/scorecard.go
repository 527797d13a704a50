package appraisal

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(RequiredWeightage)

// GoalScore is one goal's contribution to the weighted score: weightage/100
// multiplied by the rating.
type GoalScore struct {
	GoalID          string          `json:"goalId"`
	Title           string          `json:"title"`
	Weightage       int             `json:"weightage"`
	SelfRating      int             `json:"selfRating,omitempty"`
	SelfScore       decimal.Decimal `json:"selfScore"`
	AppraiserRating int             `json:"appraiserRating,omitempty"`
	AppraiserScore  decimal.Decimal `json:"appraiserScore"`
}

// Scorecard sums weighted ratings. Totals are on the 1-5 rating scale when
// every goal is rated. Hidden field groups contribute nothing.
type Scorecard struct {
	AppraisalID            string          `json:"appraisalId"`
	Status                 Status          `json:"status"`
	Goals                  []GoalScore     `json:"goals"`
	SelfTotal              decimal.Decimal `json:"selfTotal"`
	AppraiserTotal         decimal.Decimal `json:"appraiserTotal"`
	AppraiserOverallRating int             `json:"appraiserOverallRating,omitempty"`
	ReviewerOverallRating  int             `json:"reviewerOverallRating,omitempty"`
	SelfVisible            bool            `json:"selfVisible"`
	AppraiserVisible       bool            `json:"appraiserVisible"`
}

func BuildScorecard(view AppraisalView) Scorecard {
	card := Scorecard{
		AppraisalID:            view.Appraisal.ID,
		Status:                 view.Appraisal.Status,
		Goals:                  make([]GoalScore, 0, len(view.Goals)),
		SelfTotal:              decimal.Zero,
		AppraiserTotal:         decimal.Zero,
		AppraiserOverallRating: view.Appraisal.AppraiserOverallRating,
		ReviewerOverallRating:  view.Appraisal.ReviewerOverallRating,
		SelfVisible:            view.Access.SelfAssessment.Visible(),
		AppraiserVisible:       view.Access.AppraiserEvaluation.Visible(),
	}
	for _, goal := range view.Goals {
		share := decimal.NewFromInt(int64(goal.Goal.Weightage)).Div(hundred)
		score := GoalScore{
			GoalID:         goal.ID,
			Title:          goal.Goal.Title,
			Weightage:      goal.Goal.Weightage,
			SelfScore:      decimal.Zero,
			AppraiserScore: decimal.Zero,
		}
		if card.SelfVisible && ValidRating(goal.SelfRating) {
			score.SelfRating = goal.SelfRating
			score.SelfScore = share.Mul(decimal.NewFromInt(int64(goal.SelfRating)))
		}
		if card.AppraiserVisible && ValidRating(goal.AppraiserRating) {
			score.AppraiserRating = goal.AppraiserRating
			score.AppraiserScore = share.Mul(decimal.NewFromInt(int64(goal.AppraiserRating)))
		}
		card.SelfTotal = card.SelfTotal.Add(score.SelfScore)
		card.AppraiserTotal = card.AppraiserTotal.Add(score.AppraiserScore)
		card.Goals = append(card.Goals, score)
	}
	card.SelfTotal = card.SelfTotal.Round(2)
	card.AppraiserTotal = card.AppraiserTotal.Round(2)
	return card
}
