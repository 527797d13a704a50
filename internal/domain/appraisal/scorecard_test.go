package appraisal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScorecardWeightsRatings(t *testing.T) {
	rec := recordWithWeights(StatusComplete, 60, 40)
	rec.Goals[0].SelfRating, rec.Goals[0].AppraiserRating = 5, 4
	rec.Goals[1].SelfRating, rec.Goals[1].AppraiserRating = 3, 3

	card := BuildScorecard(Redact(rec, RelationshipReviewer))
	require.Len(t, card.Goals, 2)
	assert.True(t, decimal.RequireFromString("3").Equal(card.Goals[0].SelfScore))
	assert.True(t, decimal.RequireFromString("2.4").Equal(card.Goals[0].AppraiserScore))
	assert.Equal(t, "4.20", card.SelfTotal.StringFixed(2))
	assert.Equal(t, "3.60", card.AppraiserTotal.StringFixed(2))
}

func TestBuildScorecardRespectsAccess(t *testing.T) {
	rec := recordWithWeights(StatusAppraiserEvaluation, 100)
	rec.Goals[0].SelfRating = 4
	rec.Goals[0].AppraiserRating = 2

	card := BuildScorecard(Redact(rec, RelationshipAppraisee))
	assert.True(t, card.SelfVisible)
	assert.False(t, card.AppraiserVisible)
	assert.Equal(t, "4.00", card.SelfTotal.StringFixed(2))
	assert.True(t, card.AppraiserTotal.IsZero())
	assert.Zero(t, card.Goals[0].AppraiserRating)
}
