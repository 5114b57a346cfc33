package gitsync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Commit struct {
	Hash        string
	CommittedAt time.Time
	Message     string
}

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Log lists commits reachable from ref touching path, newest first.
// A zero since scans the whole history.
func (s *Syncer) Log(ctx context.Context, name, ref, path string, since time.Time) ([]Commit, error) {
	args := []string{"log", "--format=%H" + "%x1f" + "%ct" + "%x1f" + "%B" + "%x1e"}
	if !since.IsZero() {
		args = append(args, fmt.Sprintf("--since=@%d", since.Unix()))
	}
	args = append(args, ref, "--", path)

	out, err := s.git.Run(ctx, s.RepoDir(name), args...)
	if err != nil {
		return nil, errors.Wrap(classify(err, false), "Failed to read history")
	}
	return parseLog(out, since), nil
}

// parseLog drops records it cannot parse.
func parseLog(out string, since time.Time) []Commit {
	var commits []Commit
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if record == "" {
			continue
		}
		fields := strings.SplitN(record, fieldSep, 3)
		if len(fields) != 3 {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			continue
		}
		committed := time.Unix(unix, 0)
		if !since.IsZero() && committed.Before(since) {
			continue
		}
		commits = append(commits, Commit{
			Hash:        strings.TrimSpace(fields[0]),
			CommittedAt: committed,
			Message:     fields[2],
		})
	}
	return commits
}

// Show returns the content of path at ref. found is false when ref has no such file.
func (s *Syncer) Show(ctx context.Context, name, ref, path string) (content string, found bool, err error) {
	dir := s.RepoDir(name)
	listed, err := s.git.Run(ctx, dir, "ls-tree", "--name-only", ref, "--", path)
	if err != nil {
		return "", false, errors.Wrap(classify(err, false), "Failed to list tree")
	}
	if strings.TrimSpace(listed) == "" {
		return "", false, nil
	}

	content, err = s.git.Run(ctx, dir, "show", ref+":"+path)
	if err != nil {
		return "", false, errors.Wrapf(err, "Failed to read %s", path)
	}
	return content, true, nil
}
