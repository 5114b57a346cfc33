package ledger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	lf "github.com/bigredeye/scoreledger/internal/logfield"
	"github.com/bigredeye/scoreledger/internal/models"
	"github.com/bigredeye/scoreledger/internal/ratelimit"
	"github.com/bigredeye/scoreledger/internal/report"
)

type CheckRequest struct {
	Submitter string
	Repo      string
	Exercise  string
	// ReportPath is only read to resolve an unknown exercise.
	ReportPath string
	Groups     []string
	Quotas     []ratelimit.Quota
}

type CheckResult struct {
	RunID    string
	Exercise string
	*ratelimit.Result
}

// Check evaluates quotas against the audit log without taking the ledger lock.
func (s *Service) Check(ctx context.Context, req *CheckRequest) (*CheckResult, error) {
	result := &CheckResult{RunID: uuid.NewString(), Exercise: req.Exercise}
	log := s.logger.With(lf.RunID(result.RunID), lf.Submitter(req.Submitter), lf.Repo(req.Repo))

	if req.Exercise == "" || req.Exercise == models.UnknownExercise {
		rep, err := report.Load(req.ReportPath)
		if err != nil {
			log.Error("Failed to load score report", lf.File(req.ReportPath), zap.Error(err))
			return result, err
		}
		if result.Exercise, err = resolveExercise(req.Exercise, rep); err != nil {
			return result, err
		}
	}

	limiter := ratelimit.NewLimiter(s.codec, &ratelimit.GitHistory{
		Syncer: s.syncer,
		Repo:   s.conf.Repos.Shared,
		Branch: s.conf.Repos.Branch,
		Path:   s.conf.Files.Scoreboard,
	}, s.logger)

	checked, err := limiter.Check(ctx, req.Quotas, &ratelimit.Request{
		Submitter: req.Submitter,
		Exercise:  result.Exercise,
		Repo:      req.Repo,
		Groups:    req.Groups,
	})
	if err != nil {
		return result, err
	}
	result.Result = checked
	log.Info("Checked quotas", lf.Exercise(result.Exercise), zap.Bool("exceeded", checked.Exceeded))
	return result, nil
}
