package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cscsync/internal/database"
	"github.com/example/cscsync/pkg/models"
)

type recordingMerger struct {
	calls map[string]*models.MergeRequest
}

func (r *recordingMerger) Merge(_ context.Context, identity string, req *models.MergeRequest) (*database.MergeResult, error) {
	if r.calls == nil {
		r.calls = map[string]*models.MergeRequest{}
	}
	r.calls[identity] = req
	res := &database.MergeResult{Counters: map[string]models.CounterFamily{}}
	for _, qid := range req.QIDs() {
		res.Counters[qid] = models.CounterFamily{}
	}
	return res, nil
}

func sampleRows() []models.AggregateRow {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return []models.AggregateRow{
		{Identity: "alice@example.com", QID: "20240501-1", UpdatedAt: at, CounterFamily: models.CounterFamily{
			CorrectTotal: 5, WrongTotal: 1, CorrectStreak3Total: 1, CorrectStreakLen: 2,
			CorrectStreakMax: 4, CorrectStreakMaxDay: "20240430",
		}},
		{Identity: "bob@example.com", QID: "20240501-2", UpdatedAt: at, CounterFamily: models.CounterFamily{WrongTotal: 3, WrongStreak3Total: 1}},
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, ext := range []string{".csv", ".xlsx"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "aggregates"+ext)
			require.NoError(t, Export(path, sampleRows()))

			m := &recordingMerger{}
			res, err := ImportCounters(context.Background(), ImportConfig{FilePath: path}, m)
			require.NoError(t, err)

			assert.Equal(t, 2, res.TotalProcessed)
			assert.Equal(t, 2, res.Identities)
			assert.Equal(t, 2, res.Applied)
			assert.Empty(t, res.Errors)

			alice := m.calls["alice@example.com"]
			require.NotNil(t, alice)
			assert.Equal(t, int64(5), alice.CorrectDelta["20240501-1"])
			assert.Equal(t, int64(1), alice.IncorrectDelta["20240501-1"])
			assert.Equal(t, int64(1), alice.Streak3Delta["20240501-1"])
			assert.Nil(t, alice.StreakLenDelta)
			assert.Nil(t, alice.StreakMaxDelta)

			bob := m.calls["bob@example.com"]
			require.NotNil(t, bob)
			assert.Nil(t, bob.CorrectDelta)
			assert.Equal(t, int64(3), bob.IncorrectDelta["20240501-2"])
			assert.Equal(t, int64(1), bob.Streak3WrongDelta["20240501-2"])
		})
	}
}

func TestImportReportsBadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.csv")
	data := "Identity,QID,correct_total\n" +
		"alice@example.com,20240501-1,2\n" +
		"alice@example.com,20240501-1,1\n" +
		",20240501-2,1\n" +
		"alice@example.com,bogus,1\n" +
		"alice@example.com,20240501-3,-4\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	m := &recordingMerger{}
	res, err := ImportCounters(context.Background(), ImportConfig{FilePath: path}, m)
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalProcessed)
	assert.Equal(t, 3, res.Skipped)
	assert.Len(t, res.Errors, 3)
	assert.Equal(t, int64(3), m.calls["alice@example.com"].CorrectDelta["20240501-1"])
}

func TestImportRequiresHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.csv")
	require.NoError(t, os.WriteFile(path, []byte("who,what\na,b\n"), 0o644))

	_, err := ImportCounters(context.Background(), ImportConfig{FilePath: path}, &recordingMerger{})
	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSVReportsWriterFailure(t *testing.T) {
	rows := []models.AggregateRow{{Identity: "a@example.com", QID: "20240501-1"}}
	err := writeCSV(failingWriter{}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestExportCSVClosesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, Export(path, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), ExportHeader[0])
	require.NoError(t, os.Remove(path))
}
