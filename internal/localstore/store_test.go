package localstore

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cscsync/pkg/models"
)

type failingKV struct{}

func (failingKV) Get(string) (string, bool, error) { return "", false, errors.New("quota exceeded") }
func (failingKV) Set(string, string) error         { return errors.New("quota exceeded") }
func (failingKV) Delete(string) error              { return errors.New("quota exceeded") }
func (failingKV) Keys(string) ([]string, error)    { return nil, errors.New("quota exceeded") }

func TestGetIntFallbacks(t *testing.T) {
	kv := NewMemoryKV()
	s := New(kv, nil)

	assert.Equal(t, int64(0), s.GetInt("missing"))

	require.NoError(t, kv.Set("garbage", "NaN"))
	assert.Equal(t, int64(0), s.GetInt("garbage"))

	require.NoError(t, kv.Set("negative", "-4"))
	assert.Equal(t, int64(0), s.GetInt("negative"))

	s.SetInt("ok", 7)
	assert.Equal(t, int64(7), s.GetInt("ok"))

	s.SetInt("clamped", -3)
	assert.Equal(t, int64(0), s.GetInt("clamped"))
}

func TestStoreSwallowsBackendFailures(t *testing.T) {
	s := New(failingKV{}, nil)

	assert.NotPanics(t, func() {
		s.SetInt("a", 1)
		s.SetJSON("b", []string{"x"})
		s.Delete("c")
	})
	assert.Equal(t, int64(0), s.GetInt("a"))
	assert.Empty(t, s.QIDs())
}

func TestGetDay(t *testing.T) {
	kv := NewMemoryKV()
	s := New(kv, nil)

	s.SetDay("d", "20250131")
	assert.Equal(t, models.Day("20250131"), s.GetDay("d"))

	require.NoError(t, kv.Set("bad", "yesterday"))
	assert.Equal(t, models.Day(""), s.GetDay("bad"))
}

func TestCounterFamilyRoundTrip(t *testing.T) {
	s := New(NewMemoryKV(), nil)
	want := models.CounterFamily{
		CorrectTotal:        5,
		WrongTotal:          2,
		CorrectStreak3Total: 1,
		CorrectStreakLen:    3,
		CorrectStreakMax:    3,
		CorrectStreakMaxDay: "20250101",
	}

	s.SetCurrent("20250101-1", want)
	assert.Equal(t, want, s.Current("20250101-1"))
	assert.Equal(t, []string{"20250101-1"}, s.QIDs())
}

func TestAddQIDKeepsSortedSet(t *testing.T) {
	s := New(NewMemoryKV(), nil)
	s.AddQID("20250102-3")
	s.AddQID("20250101-7")
	s.AddQID("20250102-3")
	s.AddQID("20250101-2")

	assert.Equal(t, []string{"20250101-2", "20250101-7", "20250102-3"}, s.QIDs())
}

func TestResetQuestionKeepsBaseline(t *testing.T) {
	s := New(NewMemoryKV(), nil)
	qid := "20250101-1"
	s.SetCurrent(qid, models.CounterFamily{CorrectTotal: 4, WrongTotal: 1, CorrectStreakLen: 2})
	s.SetBaseline(qid, models.FieldCorrectTotal, 4)

	s.ResetQuestion(qid)

	cur := s.Current(qid)
	assert.Equal(t, int64(0), cur.CorrectTotal)
	assert.Equal(t, int64(0), cur.WrongTotal)
	assert.Equal(t, int64(2), cur.CorrectStreakLen)
	assert.Equal(t, int64(4), s.Baseline(qid).CorrectTotal)
}

func TestSentTracksKnown(t *testing.T) {
	s := New(NewMemoryKV(), nil)
	qid := "20250101-1"

	_, ok := s.Sent(qid, models.FieldCorrectStreakMax, models.FieldCorrectStreakMaxDay)
	assert.False(t, ok)

	s.SetSent(qid, models.FieldCorrectStreakMax, models.FieldCorrectStreakMaxDay, models.MaxRecord{Max: 4, Day: "20250105"})
	rec, ok := s.Sent(qid, models.FieldCorrectStreakMax, models.FieldCorrectStreakMaxDay)
	assert.True(t, ok)
	assert.Equal(t, models.MaxRecord{Max: 4, Day: "20250105"}, rec)
}

func TestSQLiteKV(t *testing.T) {
	kv, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer kv.Close()

	_, ok, err := kv.Get("cscs:cur:correctTotal:20250101-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("cscs:cur:correctTotal:20250101-1", "3"))
	require.NoError(t, kv.Set("cscs:cur:correctTotal:20250101-1", "4"))
	require.NoError(t, kv.Set("cscs:base:correctTotal:20250101-1", "2"))

	v, ok, err := kv.Get("cscs:cur:correctTotal:20250101-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "4", v)

	keys, err := kv.Keys("cscs:cur:")
	require.NoError(t, err)
	assert.Equal(t, []string{"cscs:cur:correctTotal:20250101-1"}, keys)

	require.NoError(t, kv.Delete("cscs:cur:correctTotal:20250101-1"))
	_, ok, err = kv.Get("cscs:cur:correctTotal:20250101-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionKeyCache(t *testing.T) {
	s := New(NewMemoryKV(), nil)
	s.SetSessionKey("k-123", "learner@example.com")
	key, user := s.SessionKey()
	assert.Equal(t, "k-123", key)
	assert.Equal(t, "learner@example.com", user)
}

func TestCachedSessionMatchesIdentity(t *testing.T) {
	s := New(NewMemoryKV(), nil)
	_, _, ok := s.CachedSession("")
	assert.False(t, ok)

	s.SetSessionKey("k-123", "learner@example.com")
	key, user, ok := s.CachedSession("learner@example.com")
	require.True(t, ok)
	assert.Equal(t, "k-123", key)
	assert.Equal(t, "learner@example.com", user)

	_, _, ok = s.CachedSession("other@example.com")
	assert.False(t, ok)
	_, _, ok = s.CachedSession("")
	assert.True(t, ok)

	s.ClearSessionKey()
	_, _, ok = s.CachedSession("")
	assert.False(t, ok)
}

func TestTodayDays(t *testing.T) {
	s := New(NewMemoryKV(), nil)
	s.SetJSON(TodayKey(models.TodayStreak3, "20240502"), []string{"20240502-1"})
	s.SetJSON(TodayKey(models.TodayStreak3, "20240501"), []string{"20240501-1"})
	s.SetJSON(TodaySentKey(models.TodayStreak3, "20240430"), []string{"20240430-1"})
	s.SetJSON(TodayKey(models.TodayStreak3Wrong, "20240429"), []string{"20240429-1"})

	assert.Equal(t, []models.Day{"20240501", "20240502"}, s.TodayDays(models.TodayStreak3))
	assert.Equal(t, []models.Day{"20240429"}, s.TodayDays(models.TodayStreak3Wrong))
}
