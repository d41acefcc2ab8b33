package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/cscsync/internal/localstore"
	"github.com/example/cscsync/pkg/models"
)

func TestRepairIdempotent(t *testing.T) {
	for last := int64(0); last <= 12; last++ {
		for cur := int64(0); cur <= 12; cur++ {
			once, _ := Repair(last, cur)
			twice, changed := Repair(once, cur)
			assert.Equal(t, once, twice, "last=%d cur=%d", last, cur)
			assert.False(t, changed)
			assert.LessOrEqual(t, once, cur)
		}
	}
}

func TestSanitize(t *testing.T) {
	baseline := models.CounterFamily{CorrectTotal: 10, WrongTotal: 1, CorrectStreak3Total: 2}
	current := models.CounterFamily{CorrectTotal: 4, WrongTotal: 3, CorrectStreak3Total: 2}

	got, corrections := Sanitize(baseline, current)

	assert.Equal(t, int64(4), got.CorrectTotal)
	assert.Equal(t, int64(1), got.WrongTotal)
	assert.Equal(t, int64(2), got.CorrectStreak3Total)
	assert.Equal(t, []Correction{{Field: models.FieldCorrectTotal, From: 10, To: 4}}, corrections)

	again, corrections := Sanitize(got, current)
	assert.Equal(t, got, again)
	assert.Empty(t, corrections)
}

func TestCheckPersistsCorrection(t *testing.T) {
	store := localstore.New(localstore.NewMemoryKV(), nil)
	qid := "20250101-1"
	store.SetCurrent(qid, models.CounterFamily{CorrectTotal: 4})
	store.SetBaseline(qid, models.FieldCorrectTotal, 10)

	g := New(store, nil)
	baseline, corrections := g.Check(qid, store.Current(qid))

	assert.Len(t, corrections, 1)
	assert.Equal(t, int64(4), baseline.CorrectTotal)
	assert.Equal(t, int64(4), store.Baseline(qid).CorrectTotal)

	_, corrections = g.Check(qid, store.Current(qid))
	assert.Empty(t, corrections)
}
