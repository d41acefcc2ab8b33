package excel

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/example/cscsync/pkg/models"
)

// ExportSheet is the sheet xlsx exports are written to, the workbook default.
const ExportSheet = "Sheet1"

// ExportHeader is the column layout of an export. ImportCounters reads the
// same names.
var ExportHeader = []string{
	"identity", "qid",
	"correct_total", "wrong_total", "streak3_total", "wrong_streak3_total",
	"streak_len", "wrong_streak_len",
	"streak_max", "streak_max_day", "wrong_streak_max", "wrong_streak_max_day",
	"updated_at",
}

func exportRecord(r models.AggregateRow) []string {
	c := r.CounterFamily
	itoa := func(v int64) string { return strconv.FormatInt(v, 10) }
	return []string{
		r.Identity, r.QID,
		itoa(c.CorrectTotal), itoa(c.WrongTotal), itoa(c.CorrectStreak3Total), itoa(c.WrongStreak3Total),
		itoa(c.CorrectStreakLen), itoa(c.WrongStreakLen),
		itoa(c.CorrectStreakMax), string(c.CorrectStreakMaxDay), itoa(c.WrongStreakMax), string(c.WrongStreakMaxDay),
		r.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

// Export writes rows to path as CSV or, for any other extension, XLSX.
func Export(path string, rows []models.AggregateRow) error {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return exportCSV(path, rows)
	}
	return exportXLSX(path, rows)
}

func exportCSV(path string, rows []models.AggregateRow) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create CSV file")
	}
	if err := writeCSV(file, rows); err != nil {
		file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "failed to close CSV file")
}

func writeCSV(out io.Writer, rows []models.AggregateRow) error {
	w := csv.NewWriter(out)
	if err := w.Write(ExportHeader); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}
	for _, r := range rows {
		if err := w.Write(exportRecord(r)); err != nil {
			return errors.Wrap(err, "failed to write CSV row")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "failed to flush CSV")
}

func exportXLSX(path string, rows []models.AggregateRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(ExportSheet, "A1", toAny(ExportHeader)); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for i, r := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "failed to address row")
		}
		if err := f.SetSheetRow(ExportSheet, ref, toAny(exportRecord(r))); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i+2)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrap(err, "failed to save Excel file")
	}
	return nil
}

func toAny(ss []string) *[]any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return &out
}
