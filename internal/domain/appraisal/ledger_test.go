package appraisal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	calls   []string
	nextID  int
	failOn  string
	failErr error
}

func (p *recordingPersister) AddGoal(_ context.Context, appraisalID string, goal AppraisalGoal) (string, error) {
	if p.failOn == "add" {
		return "", p.failErr
	}
	p.nextID++
	id := fmt.Sprintf("new-%d", p.nextID)
	p.calls = append(p.calls, "add:"+goal.Goal.Title)
	return id, nil
}

func (p *recordingPersister) UpdateGoal(_ context.Context, goal AppraisalGoal) error {
	if p.failOn == "update" {
		return p.failErr
	}
	p.calls = append(p.calls, "update:"+goal.ID)
	return nil
}

func (p *recordingPersister) RemoveGoal(_ context.Context, _ string, goalID string) error {
	if p.failOn == "remove" {
		return p.failErr
	}
	p.calls = append(p.calls, "remove:"+goalID)
	return nil
}

func goal(title string, weightage int) Goal {
	return Goal{Title: title, Importance: ImportanceMedium, Weightage: weightage, CategoryID: "c1"}
}

func TestLedgerScenarioEUpdateReachesHundred(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, nil)
	_, err := l.StageAdd(AppraisalGoal{LocalID: "one", Goal: goal("one", 30)})
	require.NoError(t, err)
	_, err = l.StageAdd(AppraisalGoal{LocalID: "two", Goal: goal("two", 30)})
	require.NoError(t, err)
	_, err = l.StageAdd(AppraisalGoal{LocalID: "three", Goal: goal("three", 30)})
	require.NoError(t, err)
	assert.Equal(t, 90, l.TotalWeightage())

	require.NoError(t, l.CheckCapacity("two", 40))
	require.NoError(t, l.StageUpdate("two", goal("two", 40)))
	assert.Equal(t, 100, l.TotalWeightage())
	assert.Len(t, l.Added(), 3)
	assert.Empty(t, l.Updated(), "staged goals stay in the added set")

	rec := Record{Appraisal: Appraisal{Status: StatusDraft}, Goals: l.Effective()}
	assert.NoError(t, CheckTransition(rec, StatusSubmitted, RelationshipAppraiser))
}

func TestLedgerStageAddReplacesSameKey(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, nil)
	_, err := l.StageAdd(AppraisalGoal{LocalID: "x", Goal: goal("first", 20)})
	require.NoError(t, err)
	_, err = l.StageAdd(AppraisalGoal{LocalID: "x", Goal: goal("second", 25)})
	require.NoError(t, err)

	added := l.Added()
	require.Len(t, added, 1)
	assert.Equal(t, "second", added[0].Goal.Title)
	assert.Equal(t, 25, l.TotalWeightage())
}

func TestLedgerStageAddGeneratesLocalID(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, nil)
	key, err := l.StageAdd(AppraisalGoal{Goal: goal("anon", 10)})
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Equal(t, key, l.Added()[0].LocalID)
}

func TestLedgerRejectsWeightageOutOfRange(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(50))
	for _, w := range []int{0, -5, 101} {
		_, err := l.StageAdd(AppraisalGoal{LocalID: "x", Goal: goal("x", w)})
		var invalid *InvalidWeightageError
		require.ErrorAs(t, err, &invalid, "weightage %d", w)
		assert.Equal(t, w, invalid.Weightage)

		assert.ErrorIs(t, l.StageUpdate("p1", goal("p1", w)), ErrInvalidWeightage)
	}
	assert.False(t, l.Pending())
}

func TestLedgerUpdatePersistedGoalLatestWins(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(50, 50))
	require.NoError(t, l.StageUpdate("p1", goal("p1", 30)))
	require.NoError(t, l.StageUpdate("p1", goal("p1 renamed", 40)))

	updated := l.Updated()
	require.Len(t, updated, 1)
	assert.Equal(t, "p1 renamed", updated[0].Goal.Title)
	assert.Equal(t, 90, l.TotalWeightage())
}

func TestLedgerRemovePersistedAndStaged(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(40, 60))
	require.NoError(t, l.StageUpdate("p1", goal("p1", 20)))
	require.NoError(t, l.StageRemove("p1"))
	assert.Equal(t, []string{"p1"}, l.Removed())
	assert.Empty(t, l.Updated(), "removal strips the pending update")

	_, err := l.StageAdd(AppraisalGoal{LocalID: "tmp", Goal: goal("tmp", 10)})
	require.NoError(t, err)
	require.NoError(t, l.StageRemove("tmp"))
	assert.Empty(t, l.Added())
	assert.Equal(t, []string{"p1"}, l.Removed(), "staged-only goals are never recorded as removed")

	assert.Equal(t, 60, l.TotalWeightage())
	assert.ErrorIs(t, l.StageUpdate("p1", goal("p1", 10)), ErrGoalNotFound)
	assert.ErrorIs(t, l.StageRemove("missing"), ErrGoalNotFound)
}

func TestLedgerLockedOutsideDraft(t *testing.T) {
	for _, status := range Sequence[1:] {
		l := NewGoalLedger("a1", status, persistedGoals(100))
		_, err := l.StageAdd(AppraisalGoal{LocalID: "x", Goal: goal("x", 10)})
		assert.ErrorIs(t, err, ErrGoalsLocked, status)
		assert.ErrorIs(t, l.StageUpdate("p1", goal("p1", 50)), ErrGoalsLocked, status)
		assert.ErrorIs(t, l.StageRemove("p1"), ErrGoalsLocked, status)
		assert.ErrorIs(t, l.Commit(context.Background(), &recordingPersister{}), ErrGoalsLocked, status)
	}
}

func TestLedgerCapacityExcludesEditedGoal(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(30, 30, 30))
	const w1 = 30
	for w2 := 1; w2 <= 100; w2++ {
		err := l.CheckCapacity("p2", w2)
		if 90-w1+w2 <= 100 {
			assert.NoError(t, err, "w2=%d", w2)
			continue
		}
		var exceeded *CapacityExceededError
		require.ErrorAs(t, err, &exceeded, "w2=%d", w2)
		assert.Equal(t, 40, exceeded.Remaining)
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	}

	assert.Equal(t, 10, l.Remaining(""))
	assert.Equal(t, 40, l.Remaining("p2"))
	assert.NoError(t, l.CheckCapacity("", 10))
	assert.ErrorIs(t, l.CheckCapacity("", 11), ErrCapacityExceeded)
}

func TestLedgerCapacityEditDownThenUp(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(50, 50))
	require.NoError(t, l.CheckCapacity("p1", 20))
	require.NoError(t, l.StageUpdate("p1", goal("p1", 20)))
	require.NoError(t, l.CheckCapacity("p1", 50), "raising back to its own prior value must not double count")
	require.NoError(t, l.StageUpdate("p1", goal("p1", 50)))
	assert.ErrorIs(t, l.CheckCapacity("p1", 51), ErrCapacityExceeded)
	assert.Equal(t, 100, l.TotalWeightage())
}

func TestLedgerRemainingForAddIgnoresPersistedIDs(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(60))
	assert.Equal(t, 40, l.RemainingForAdd(""))
	assert.Equal(t, 40, l.RemainingForAdd("p1"), "a local id naming a persisted goal frees nothing")
	assert.Equal(t, 100, l.Remaining("p1"))

	_, err := l.StageAdd(AppraisalGoal{LocalID: "n", Goal: goal("n", 30)})
	require.NoError(t, err)
	assert.Equal(t, 40, l.RemainingForAdd("n"), "restaging n replaces its own weight")
	assert.Equal(t, 10, l.RemainingForAdd("other"))
}

func TestLedgerDoesNotBlockOverage(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(80))
	_, err := l.StageAdd(AppraisalGoal{LocalID: "x", Goal: goal("x", 50)})
	require.NoError(t, err)
	assert.Equal(t, 130, l.TotalWeightage())
	assert.Equal(t, -30, l.Remaining(""))
}

func TestLedgerCommitOrderAndRefresh(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(40, 30, 30))
	require.NoError(t, l.StageRemove("p3"))
	require.NoError(t, l.StageUpdate("p2", goal("p2", 20)))
	_, err := l.StageAdd(AppraisalGoal{LocalID: "n", Goal: goal("fresh", 40)})
	require.NoError(t, err)

	p := &recordingPersister{}
	require.NoError(t, l.Commit(context.Background(), p))
	assert.Equal(t, []string{"remove:p3", "update:p2", "add:fresh"}, p.calls)

	assert.False(t, l.Pending())
	effective := l.Effective()
	require.Len(t, effective, 3)
	assert.Equal(t, "new-1", effective[2].ID)
	assert.Empty(t, effective[2].LocalID)
	assert.Equal(t, 3, effective[2].Position)
	assert.Equal(t, 100, l.TotalWeightage())

	// the refreshed snapshot treats the added goal as persisted
	require.NoError(t, l.StageRemove("new-1"))
	assert.Equal(t, []string{"new-1"}, l.Removed())
}

func TestLedgerCommitFailureKeepsStagedState(t *testing.T) {
	boom := errors.New("connection reset")
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(50, 50))
	require.NoError(t, l.StageRemove("p1"))
	_, err := l.StageAdd(AppraisalGoal{LocalID: "n", Goal: goal("n", 50)})
	require.NoError(t, err)

	p := &recordingPersister{failOn: "add", failErr: boom}
	err = l.Commit(context.Background(), p)
	assert.Same(t, boom, err)
	assert.True(t, l.Pending())
	assert.Equal(t, []string{"p1"}, l.Removed())
	assert.Len(t, l.Added(), 1)

	p.failOn = ""
	p.calls = nil
	require.NoError(t, l.Commit(context.Background(), p))
	assert.Equal(t, []string{"remove:p1", "add:n"}, p.calls)
}

func TestLedgerDiscard(t *testing.T) {
	l := NewGoalLedger("a1", StatusDraft, persistedGoals(100))
	require.NoError(t, l.StageRemove("p1"))
	l.Discard()
	assert.False(t, l.Pending())
	assert.Equal(t, 100, l.TotalWeightage())
}

func persistedGoals(weights ...int) []AppraisalGoal {
	out := make([]AppraisalGoal, 0, len(weights))
	for i, w := range weights {
		id := fmt.Sprintf("p%d", i+1)
		out = append(out, AppraisalGoal{ID: id, AppraisalID: "a1", Goal: goal(id, w), Position: i})
	}
	return out
}
