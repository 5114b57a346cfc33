package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/bigredeye/scoreledger/internal/gitsync"
)

// History returns commits of the audited file, newest first.
type History interface {
	Commits(ctx context.Context, since time.Time) ([]gitsync.Commit, error)
}

// GitHistory reads the audit log from the remote tracking ref of the shared
// repository. It fetches but never touches the working tree, so it runs
// without the ledger lock.
type GitHistory struct {
	Syncer *gitsync.Syncer
	Repo   string
	Branch string
	Path   string
}

func (h *GitHistory) Commits(ctx context.Context, since time.Time) ([]gitsync.Commit, error) {
	if _, err := h.Syncer.EnsureCloned(ctx, h.Repo); err != nil {
		return nil, err
	}
	if err := h.Syncer.Fetch(ctx, h.Repo); err != nil {
		return nil, errors.Wrap(err, "Failed to fetch")
	}
	ref, err := h.Syncer.VerifyBranch(ctx, h.Repo, h.Branch)
	if err != nil {
		return nil, err
	}
	return h.Syncer.Log(ctx, h.Repo, ref, h.Path, since)
}
