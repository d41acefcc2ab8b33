package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cscsync/internal/guard"
	"github.com/example/cscsync/pkg/models"
)

const qid = "20250101-1"

func TestNonNegative(t *testing.T) {
	for last := int64(0); last <= 10; last++ {
		for cur := int64(0); cur <= 10; cur++ {
			assert.GreaterOrEqual(t, NonNegative(cur, last), int64(0))
		}
	}
	assert.Equal(t, int64(2), NonNegative(5, 3))
	assert.Equal(t, int64(0), NonNegative(4, 10))
}

func TestComputeCorrectDelta(t *testing.T) {
	r := Compute(Input{
		QID:      qid,
		Current:  models.CounterFamily{CorrectTotal: 5},
		Baseline: models.CounterFamily{CorrectTotal: 3},
	})

	var req models.MergeRequest
	r.AppendTo(&req)
	assert.Equal(t, map[string]int64{qid: 2}, req.CorrectDelta)
	assert.Nil(t, req.IncorrectDelta)
	assert.Equal(t, int64(5), r.Snapshot.CorrectTotal)
}

func TestComputeStreakLenWithoutStreak3(t *testing.T) {
	r := Compute(Input{
		QID:      qid,
		Current:  models.CounterFamily{CorrectStreak3Total: 2, CorrectStreakLen: 2},
		Baseline: models.CounterFamily{CorrectStreak3Total: 2},
	})

	var req models.MergeRequest
	r.AppendTo(&req)
	assert.Equal(t, int64(2), req.StreakLenDelta[qid])
	assert.Nil(t, req.Streak3Delta, "streak3Delta must be absent, not zero")
	assert.Nil(t, req.CorrectDelta)
}

func TestComputeNothingToReport(t *testing.T) {
	c := models.CounterFamily{CorrectTotal: 3, WrongTotal: 1, CorrectStreakMax: 2, CorrectStreakMaxDay: "20250101"}
	r := Compute(Input{
		QID:                 qid,
		Current:             c,
		Baseline:            c,
		SentCorrectMax:      c.CorrectMax(),
		SentCorrectMaxKnown: true,
	})
	assert.True(t, r.Empty())

	var req models.MergeRequest
	r.AppendTo(&req)
	assert.True(t, req.Empty())
}

func TestComputeAfterGuardRepair(t *testing.T) {
	current := models.CounterFamily{CorrectTotal: 4}
	baseline, corrections := guard.Sanitize(models.CounterFamily{CorrectTotal: 10}, current)
	require.Len(t, corrections, 1)
	assert.Equal(t, int64(4), baseline.CorrectTotal)

	r := Compute(Input{QID: qid, Current: current, Baseline: baseline})
	assert.NotContains(t, r.Additive, models.FieldCorrectTotal)
	assert.True(t, r.Empty())
}

func TestComputeUnguardedBaselineStillNonNegative(t *testing.T) {
	r := Compute(Input{
		QID:      qid,
		Current:  models.CounterFamily{CorrectTotal: 4, WrongTotal: 2},
		Baseline: models.CounterFamily{CorrectTotal: 10, WrongTotal: 1},
	})
	assert.NotContains(t, r.Additive, models.FieldCorrectTotal)
	assert.Equal(t, int64(1), r.Additive[models.FieldWrongTotal])
}

func TestComputeMaxChange(t *testing.T) {
	current := models.CounterFamily{CorrectStreakMax: 4, CorrectStreakMaxDay: "20250102"}

	t.Run("never sent", func(t *testing.T) {
		r := Compute(Input{QID: qid, Current: current})
		require.NotNil(t, r.CorrectMax)
		assert.Equal(t, int64(4), r.CorrectMax.Max)
		assert.Nil(t, r.WrongMax)
	})

	t.Run("unchanged since last send", func(t *testing.T) {
		r := Compute(Input{
			QID:                 qid,
			Current:             current,
			SentCorrectMax:      models.MaxRecord{Max: 4, Day: "20250102"},
			SentCorrectMaxKnown: true,
		})
		assert.Nil(t, r.CorrectMax)
		assert.True(t, r.Empty())
	})

	t.Run("new record", func(t *testing.T) {
		r := Compute(Input{
			QID:                 qid,
			Current:             current,
			SentCorrectMax:      models.MaxRecord{Max: 3, Day: "20250101"},
			SentCorrectMaxKnown: true,
		})
		require.NotNil(t, r.CorrectMax)

		var req models.MergeRequest
		r.AppendTo(&req)
		assert.Equal(t, int64(4), req.StreakMaxDelta[qid])
		assert.Equal(t, models.Day("20250102"), req.StreakMaxDayDelta[qid])
		assert.Nil(t, req.StreakWrongMaxDelta)
	})
}

func TestBatch(t *testing.T) {
	var b Batch
	assert.False(t, b.Add(Compute(Input{QID: "20250101-2"})))
	assert.True(t, b.Add(Compute(Input{QID: "20250101-9", Current: models.CounterFamily{WrongTotal: 1, WrongStreakLen: 1}})))
	assert.True(t, b.Add(Compute(Input{QID: "20250101-3", Current: models.CounterFamily{CorrectTotal: 1, CorrectStreakLen: 1}})))

	assert.Equal(t, []string{"20250101-3", "20250101-9"}, b.QIDs())

	req := b.Request(1700000000000, "sub-1")
	assert.Equal(t, "sub-1", req.SubmissionID)
	assert.Equal(t, map[string]int64{"20250101-3": 1}, req.CorrectDelta)
	assert.Equal(t, map[string]int64{"20250101-9": 1}, req.IncorrectDelta)
	assert.Equal(t, map[string]int64{"20250101-3": 1, "20250101-9": 0}, req.StreakLenDelta)
}
