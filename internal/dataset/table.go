// Package dataset handles the CSV tables exchanged with the service.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RecordIDColumn must be present in every table the server sends. The
// ids are stripped before the work callback runs and re-attached to its
// predictions.
const RecordIDColumn = "record_id"

var (
	ErrEmptyTable       = errors.New("dataset: table has no header row")
	ErrMissingRecordID  = errors.New("dataset: missing record_id column")
	ErrRowCountMismatch = errors.New("dataset: prediction row count mismatch")
)

// Table is a CSV table: a header row plus data rows in original order.
type Table struct {
	Columns []string
	Rows    [][]string
}

func ReadCSV(r io.Reader) (Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("dataset: read csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, ErrEmptyTable
	}
	return Table{Columns: records[0], Rows: records[1:]}, nil
}

func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("dataset: write csv: %w", err)
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("dataset: write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (t Table) CSVString() (string, error) {
	var sb strings.Builder
	if err := t.WriteCSV(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (t Table) NumRows() int {
	return len(t.Rows)
}

// ColumnIndex returns the index of the named column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column in row order.
func (t Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("dataset: no column %q", name)
	}
	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		values = append(values, row[idx])
	}
	return values, nil
}

func dropColumn(t Table, idx int) Table {
	cols := make([]string, 0, len(t.Columns)-1)
	cols = append(cols, t.Columns[:idx]...)
	cols = append(cols, t.Columns[idx+1:]...)

	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		out := make([]string, 0, len(row)-1)
		out = append(out, row[:idx]...)
		out = append(out, row[idx+1:]...)
		rows = append(rows, out)
	}
	return Table{Columns: cols, Rows: rows}
}

// Prepare strips the record_id column from both tables and returns the
// prediction set's ids in row order, for re-attachment after the work
// callback runs. A table without record_id is a data-shape error.
func Prepare(train, predict Table) (Table, Table, []string, error) {
	trainIdx := train.ColumnIndex(RecordIDColumn)
	if trainIdx < 0 {
		return Table{}, Table{}, nil, fmt.Errorf("%w: train", ErrMissingRecordID)
	}
	predictIdx := predict.ColumnIndex(RecordIDColumn)
	if predictIdx < 0 {
		return Table{}, Table{}, nil, fmt.Errorf("%w: predict", ErrMissingRecordID)
	}

	ids, err := predict.Column(RecordIDColumn)
	if err != nil {
		return Table{}, Table{}, nil, err
	}
	return dropColumn(train, trainIdx), dropColumn(predict, predictIdx), ids, nil
}

// AttachRecordIDs prepends the record_id column to the predictions,
// enforcing row-count parity with the prediction set.
func AttachRecordIDs(predictions Table, ids []string) (Table, error) {
	if len(predictions.Rows) != len(ids) {
		return Table{}, fmt.Errorf("%w: %d predictions for %d ids",
			ErrRowCountMismatch, len(predictions.Rows), len(ids))
	}

	cols := append([]string{RecordIDColumn}, predictions.Columns...)
	rows := make([][]string, 0, len(predictions.Rows))
	for i, row := range predictions.Rows {
		rows = append(rows, append([]string{ids[i]}, row...))
	}
	return Table{Columns: cols, Rows: rows}, nil
}
