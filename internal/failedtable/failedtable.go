// Package failedtable maintains the Markdown table of repositories whose
// latest submission failed.
package failedtable

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	headerLine    = "|date|repository|failure|"
	separatorLine = "|----|----|----|"

	TimeLayout = "2006-01-02 15:04:05"
)

var legacyLayouts = []string{TimeLayout, "2006-01-02 15:04"}

type Link struct {
	Text string
	URL  string
}

func parseLink(cell string) Link {
	cell = strings.TrimSpace(cell)
	if strings.HasPrefix(cell, "[") {
		closeText := strings.Index(cell, "](")
		if closeText > 0 && strings.HasSuffix(cell, ")") {
			return Link{Text: cell[1:closeText], URL: cell[closeText+2 : len(cell)-1]}
		}
	}
	return Link{Text: cell}
}

func (l Link) String() string {
	text := sanitize(l.Text)
	if l.URL == "" {
		return text
	}
	return fmt.Sprintf("[%s](%s)", text, sanitize(l.URL))
}

func sanitize(s string) string {
	return strings.NewReplacer("|", "/", "\n", " ").Replace(s)
}

type Row struct {
	Date       time.Time
	Repository Link
	Failure    Link
}

func (r Row) String() string {
	return fmt.Sprintf("|%s|%s|%s|", r.Date.Format(TimeLayout), r.Repository, r.Failure)
}

type Table struct {
	Rows []Row
}

// Load reads the table at path; a missing file is an empty table.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read failed table")
	}
	return Parse(bytes.NewReader(data))
}

// Parse skips every line that is not a well formed row.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{}
	index := make(map[string]int)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == headerLine || line == separatorLine {
			continue
		}
		row, ok := parseRow(line)
		if !ok {
			continue
		}
		if prev, found := index[row.Repository.Text]; found {
			if row.Date.After(t.Rows[prev].Date) {
				t.Rows[prev] = row
			}
			continue
		}
		index[row.Repository.Text] = len(t.Rows)
		t.Rows = append(t.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Failed to scan failed table")
	}
	return t, nil
}

func parseRow(line string) (Row, bool) {
	if len(line) < 2 || !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
		return Row{}, false
	}
	fields := strings.Split(line[1:len(line)-1], "|")
	if len(fields) != 3 {
		return Row{}, false
	}

	var date time.Time
	var err error
	for _, layout := range legacyLayouts {
		date, err = time.ParseInLocation(layout, strings.TrimSpace(fields[0]), time.Local)
		if err == nil {
			break
		}
	}
	if err != nil {
		return Row{}, false
	}

	repo := parseLink(fields[1])
	if repo.Text == "" {
		return Row{}, false
	}
	return Row{Date: date, Repository: repo, Failure: parseLink(fields[2])}, true
}

// Upsert records the latest failure of repoName. An empty failureName clears it.
func (t *Table) Upsert(repoName, repoLink, failureName, failureLink string, now time.Time) {
	idx := -1
	for i := range t.Rows {
		if t.Rows[i].Repository.Text == repoName {
			idx = i
			break
		}
	}

	switch {
	case failureName == "" && idx >= 0:
		t.Rows = append(t.Rows[:idx], t.Rows[idx+1:]...)
	case failureName == "":
	case idx >= 0:
		t.Rows[idx].Date = now
		t.Rows[idx].Repository.URL = repoLink
		t.Rows[idx].Failure = Link{Text: failureName, URL: failureLink}
	default:
		t.Rows = append(t.Rows, Row{
			Date:       now,
			Repository: Link{Text: repoName, URL: repoLink},
			Failure:    Link{Text: failureName, URL: failureLink},
		})
	}

	t.Sort()
}

// Sort orders rows by most recent failure first.
func (t *Table) Sort() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i].Date.After(t.Rows[j].Date)
	})
}

func (t *Table) Find(repoName string) *Row {
	for i := range t.Rows {
		if t.Rows[i].Repository.Text == repoName {
			return &t.Rows[i]
		}
	}
	return nil
}

func (t *Table) Write(w io.Writer) error {
	buf := bufio.NewWriter(w)
	fmt.Fprintln(buf, headerLine)
	fmt.Fprintln(buf, separatorLine)
	for _, row := range t.Rows {
		fmt.Fprintln(buf, row.String())
	}
	return errors.Wrap(buf.Flush(), "Failed to write failed table")
}

func (t *Table) Save(path string) error {
	buf := bytes.Buffer{}
	if err := t.Write(&buf); err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0o644), "Failed to save failed table")
}
