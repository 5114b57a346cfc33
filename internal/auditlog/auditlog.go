// Package auditlog encodes submissions into commit messages of the shared
// repository and decodes them back when scanning history.
package auditlog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bigredeye/scoreledger/internal/models"
)

const groupsKey = "groups"

// Metadata is an extra "key: value" line of the commit body.
type Metadata struct {
	Key   string
	Value string
}

type Codec struct {
	tool    string
	subject *regexp.Regexp
}

func NewCodec(tool string) *Codec {
	pattern := fmt.Sprintf(
		`^%s: update scoreboard for (?P<exercise>.+?) by @(?P<submitter>\S+) in (?P<org>[^/\s]+)/(?P<repo>\S+)@(?P<commit>\S*)$`,
		regexp.QuoteMeta(tool),
	)
	return &Codec{
		tool:    tool,
		subject: regexp.MustCompile(pattern),
	}
}

func (c *Codec) Subject(s *models.Submission) string {
	return fmt.Sprintf("%s: update scoreboard for %s by @%s in %s/%s@%s",
		c.tool, s.Exercise, s.Submitter, s.Org, s.Repo, s.CommitHash)
}

// Encode renders the full commit message.
func (c *Codec) Encode(s *models.Submission, extra ...Metadata) string {
	b := strings.Builder{}
	b.WriteString(c.Subject(s))

	lines := make([]string, 0, len(extra)+1)
	if len(s.Groups) > 0 {
		lines = append(lines, fmt.Sprintf("%s: %s", groupsKey, strings.Join(s.Groups, ",")))
	}
	for _, m := range extra {
		if m.Key == "" || m.Key == groupsKey {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Key, oneLine(m.Value)))
	}
	if len(lines) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	b.WriteString("\n")
	return b.String()
}

// Decode parses a commit message. ok is false for anything that does not
// follow the subject template.
func (c *Codec) Decode(message string) (s models.Submission, ok bool) {
	lines := strings.Split(strings.TrimSpace(message), "\n")
	if len(lines) == 0 {
		return s, false
	}

	match := c.subject.FindStringSubmatch(strings.TrimSpace(lines[0]))
	if match == nil {
		return s, false
	}
	s.Exercise = match[c.subject.SubexpIndex("exercise")]
	s.Submitter = match[c.subject.SubexpIndex("submitter")]
	s.Org = match[c.subject.SubexpIndex("org")]
	s.Repo = match[c.subject.SubexpIndex("repo")]
	s.CommitHash = match[c.subject.SubexpIndex("commit")]

	for _, line := range lines[1:] {
		key, value, found := strings.Cut(strings.TrimSpace(line), ":")
		if !found || strings.TrimSpace(key) != groupsKey {
			continue
		}
		s.Groups = ParseGroups(value)
	}
	return s, true
}

// ParseGroups splits a comma separated group list, dropping empty items.
func ParseGroups(value string) []string {
	var groups []string
	for _, g := range strings.Split(value, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// HasGroup reports whether groups contains name, ignoring case.
func HasGroup(groups []string, name string) bool {
	for _, g := range groups {
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}

func oneLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
