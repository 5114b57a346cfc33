// Package scoreboard maintains the CSV scoreboard of the shared repository.
package scoreboard

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const (
	SubmitterColumn = ""
	LastEditColumn  = "last_edit"
	TotalColumn     = "total"

	TimeLayout = "2006-01-02 15:04:05"

	submitterIdx = 0
	lastEditIdx  = 1
	totalIdx     = 2
	reserved     = 3

	// NoCap disables score clamping.
	NoCap = -1
)

var ErrMalformed = errors.New("malformed scoreboard")

type Table struct {
	Header []string
	Rows   [][]string
}

func New() *Table {
	return &Table{
		Header: []string{SubmitterColumn, LastEditColumn, TotalColumn},
		Rows:   make([][]string, 0),
	}
}

// Load reads the scoreboard at path; a missing or empty file is an empty table.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read scoreboard")
	}
	return Parse(bytes.NewReader(data))
}

// Parse fails only on a bad header. Data rows that do not parse are skipped.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if len(header) < reserved ||
		header[submitterIdx] != SubmitterColumn ||
		header[lastEditIdx] != LastEditColumn ||
		header[totalIdx] != TotalColumn {
		return nil, errors.Wrapf(ErrMalformed, "unexpected header %q", header)
	}

	t := &Table{Header: header, Rows: make([][]string, 0)}
	seen := make(map[string]bool)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "Failed to read scoreboard")
		}
		if len(record) == 0 || strings.TrimSpace(record[submitterIdx]) == "" {
			continue
		}
		if seen[record[submitterIdx]] {
			continue
		}
		seen[record[submitterIdx]] = true
		t.Rows = append(t.Rows, t.align(record))
	}
	return t, nil
}

// IsReserved reports whether name is one of the fixed leading columns.
func IsReserved(name string) bool {
	return name == SubmitterColumn || name == LastEditColumn || name == TotalColumn
}

// align pads or truncates a row to the header width.
func (t *Table) align(row []string) []string {
	switch {
	case len(row) < len(t.Header):
		padded := make([]string, len(t.Header))
		copy(padded, row)
		return padded
	case len(row) > len(t.Header):
		return row[:len(t.Header)]
	default:
		return row
	}
}

func (t *Table) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Header); err != nil {
		return errors.Wrap(err, "Failed to write scoreboard header")
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return errors.Wrap(err, "Failed to write scoreboard rows")
	}
	return nil
}

func (t *Table) Save(path string) error {
	buf := bytes.Buffer{}
	if err := t.Write(&buf); err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0o644), "Failed to save scoreboard")
}

// Exercises lists the exercise columns in header order.
func (t *Table) Exercises() []string {
	return t.Header[reserved:]
}

func (t *Table) Row(submitter string) []string {
	for _, row := range t.Rows {
		if row[submitterIdx] == submitter {
			return row
		}
	}
	return nil
}

// Cell returns the value of submitter for column, or "" when absent.
func (t *Table) Cell(submitter, column string) string {
	row := t.Row(submitter)
	idx := slices.Index(t.Header, column)
	if row == nil || idx < 0 {
		return ""
	}
	return row[idx]
}

// Upsert records score for submitter in the exercise column, recomputes the
// row total and re-sorts the table by ascending total.
func (t *Table) Upsert(submitter, exercise string, score, maxScore int, now time.Time) {
	row := t.Row(submitter)
	if row == nil {
		row = make([]string, len(t.Header))
		row[submitterIdx] = submitter
		row[totalIdx] = "0"
		t.Rows = append(t.Rows, row)
	}

	col := t.column(exercise)
	// column insertion may have reallocated the row
	row = t.Row(submitter)

	if maxScore >= 0 && score > maxScore {
		score = maxScore
	}
	row[col] = strconv.Itoa(score)
	row[totalIdx] = strconv.Itoa(rowTotal(row))
	row[lastEditIdx] = now.Format(TimeLayout)

	t.Sort()
}

// column returns the index of exercise, inserting it at its sorted position.
func (t *Table) column(exercise string) int {
	if idx := slices.Index(t.Header[reserved:], exercise); idx >= 0 {
		return reserved + idx
	}

	idx := reserved + sort.SearchStrings(t.Header[reserved:], exercise)
	t.Header = slices.Insert(t.Header, idx, exercise)
	for i := range t.Rows {
		t.Rows[i] = slices.Insert(t.Rows[i], idx, "")
	}
	return idx
}

// Sort orders rows by ascending total, keeping the relative order of ties.
func (t *Table) Sort() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return cellValue(t.Rows[i][totalIdx]) < cellValue(t.Rows[j][totalIdx])
	})
}

func rowTotal(row []string) int {
	total := 0
	for _, cell := range row[reserved:] {
		total += cellValue(cell)
	}
	return total
}

// cellValue treats empty and non-numeric cells as zero.
func cellValue(cell string) int {
	value, err := strconv.Atoi(strings.TrimSpace(cell))
	if err != nil {
		return 0
	}
	return value
}
