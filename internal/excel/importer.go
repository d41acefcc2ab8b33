package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/example/cscsync/internal/database"
	"github.com/example/cscsync/internal/merge"
	"github.com/example/cscsync/pkg/models"
)

// Merger applies a merge request for one identity.
type Merger interface {
	Merge(ctx context.Context, identity string, req *models.MergeRequest) (*database.MergeResult, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath  string // Path to the Excel or CSV file
	SheetName string // Name of the sheet to import; empty means the first sheet
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Identities     int
	Applied        int
	Skipped        int
	Errors         []string
}

// importColumns are the additive counters an import carries.
var importColumns = map[string]models.Field{
	"correct_total":       models.FieldCorrectTotal,
	"wrong_total":         models.FieldWrongTotal,
	"streak3_total":       models.FieldCorrectStreak3Total,
	"wrong_streak3_total": models.FieldWrongStreak3Total,
}

// ImportCounters reads legacy counters from an Excel or CSV file and applies
// every row as an additive merge. Rows need identity and qid columns; the
// header row names the columns.
func ImportCounters(ctx context.Context, config ImportConfig, m Merger) (*ImportResult, error) {
	rows, err := readRows(config)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &ImportResult{}, nil
	}

	header := indexHeader(rows[0])
	idCol, okID := header["identity"]
	qidCol, okQID := header["qid"]
	if !okID || !okQID {
		return nil, errors.New("header must contain identity and qid columns")
	}

	result := &ImportResult{Errors: make([]string, 0)}
	requests := make(map[string]*models.MergeRequest)
	var order []string

	for i, row := range rows[1:] {
		line := i + 2
		result.TotalProcessed++

		identity := strings.TrimSpace(cell(row, idCol))
		qid := strings.TrimSpace(cell(row, qidCol))
		if identity == "" || !models.ValidQID(qid) {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: missing identity or invalid qid %q", line, qid))
			continue
		}

		req, ok := requests[identity]
		if !ok {
			req = &models.MergeRequest{}
			requests[identity] = req
			order = append(order, identity)
		}
		if err := addRow(req, qid, row, header); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", line, err))
		}
	}

	for _, identity := range order {
		req := requests[identity]
		if req.Empty() {
			continue
		}
		if err := merge.Validate(req); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", identity, err))
			continue
		}
		res, err := m.Merge(ctx, identity, req)
		if err != nil {
			return result, errors.Wrapf(err, "failed to import counters of %s", identity)
		}
		result.Identities++
		result.Applied += len(res.Counters)
	}
	return result, nil
}

func addRow(req *models.MergeRequest, qid string, row []string, header map[string]int) error {
	values := make(map[models.Field]int64)
	for name, f := range importColumns {
		col, ok := header[name]
		if !ok {
			continue
		}
		raw := strings.TrimSpace(cell(row, col))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return errors.Newf("invalid %s %q", name, raw)
		}
		values[f] = v
	}
	for f, v := range values {
		if v > 0 {
			req.SetInt(f, qid, req.IntMap(f)[qid]+v)
		}
	}
	return nil
}

func readRows(config ImportConfig) ([][]string, error) {
	// Check the file extension
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		return readCSV(config.FilePath)
	}

	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows")
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read CSV")
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func indexHeader(row []string) map[string]int {
	idx := make(map[string]int, len(row))
	for i, name := range row {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
