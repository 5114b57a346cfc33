// Package report reads score reports produced by the grading engine.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const MetadataStage = "metadata"

var ErrInvalidReport = errors.New("invalid score report")

type Result struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type Stage struct {
	Name      string   `json:"name"`
	ForceQuit bool     `json:"force_quit"`
	Results   []Result `json:"results"`
}

type Report struct {
	Stages []Stage
}

func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidReport, err.Error())
	}
	return Parse(data)
}

// Parse rejects anything that is not a list of well formed stages.
func Parse(data []byte) (*Report, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var stages []Stage
	if err := dec.Decode(&stages); err != nil {
		return nil, errors.Wrap(ErrInvalidReport, err.Error())
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Wrap(ErrInvalidReport, "trailing data after stages")
	}
	if stages == nil {
		return nil, errors.Wrap(ErrInvalidReport, "expected a list of stages")
	}
	for i, stage := range stages {
		if strings.TrimSpace(stage.Name) == "" {
			return nil, errors.Wrapf(ErrInvalidReport, "stage #%d has no name", i)
		}
	}
	return &Report{Stages: stages}, nil
}

// TotalScore sums the scores of every result except metadata.
func (r *Report) TotalScore() int {
	total := 0
	for _, stage := range r.Stages {
		if stage.Name == MetadataStage {
			continue
		}
		for _, res := range stage.Results {
			total += res.Score
		}
	}
	return total
}

// FailedStage returns the first stage that stopped the pipeline, or "".
func (r *Report) FailedStage() string {
	for _, stage := range r.Stages {
		if stage.ForceQuit {
			return stage.Name
		}
	}
	return ""
}

// ExerciseFromMetadata extracts the exercise name from the metadata stage
// comment, formatted as "<exercise>-<anything>".
func (r *Report) ExerciseFromMetadata() (string, bool) {
	for _, stage := range r.Stages {
		if stage.Name != MetadataStage || len(stage.Results) == 0 {
			continue
		}
		comment := stage.Results[0].Comment
		name, _, _ := strings.Cut(comment, "-")
		name = strings.TrimSpace(name)
		return name, name != ""
	}
	return "", false
}

// Markdown renders the report for an issue comment.
func (r *Report) Markdown() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "**Total score:** %d\n", r.TotalScore())
	for _, stage := range r.Stages {
		if stage.Name == MetadataStage {
			continue
		}
		score := 0
		for _, res := range stage.Results {
			score += res.Score
		}
		b.WriteString("\n### ")
		b.WriteString(stage.Name)
		if stage.ForceQuit {
			b.WriteString(" (failed)")
		}
		fmt.Fprintf(&b, "\n\nScore: %d\n", score)
		for _, res := range stage.Results {
			comment := strings.TrimSpace(res.Comment)
			if comment == "" {
				continue
			}
			b.WriteString("\n```\n")
			b.WriteString(comment)
			b.WriteString("\n```\n")
		}
	}
	return b.String()
}
