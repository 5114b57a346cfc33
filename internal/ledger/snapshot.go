package ledger

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/bigredeye/scoreledger/internal/failedtable"
	"github.com/bigredeye/scoreledger/internal/scoreboard"
)

type Snapshot struct {
	Scoreboard  *scoreboard.Table
	FailedTable *failedtable.Table
}

// Snapshot reads both tables at the remote tip of the branch without the lock.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	shared, branch := s.conf.Repos.Shared, s.conf.Repos.Branch
	if _, err := s.syncer.EnsureCloned(ctx, shared); err != nil {
		return nil, err
	}
	if err := s.syncer.Fetch(ctx, shared); err != nil {
		return nil, errors.Wrap(err, "Failed to fetch")
	}
	ref, err := s.syncer.VerifyBranch(ctx, shared, branch)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Scoreboard: scoreboard.New(), FailedTable: &failedtable.Table{}}

	content, found, err := s.syncer.Show(ctx, shared, ref, s.conf.Files.Scoreboard)
	if err != nil {
		return nil, err
	}
	if found {
		if snap.Scoreboard, err = scoreboard.Parse(strings.NewReader(content)); err != nil {
			return nil, err
		}
	}

	content, found, err = s.syncer.Show(ctx, shared, ref, s.conf.Files.FailedTable)
	if err != nil {
		return nil, err
	}
	if found {
		if snap.FailedTable, err = failedtable.Parse(strings.NewReader(content)); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
