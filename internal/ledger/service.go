// Package ledger records graded submissions in the shared repository.
package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bigredeye/scoreledger/internal/auditlog"
	"github.com/bigredeye/scoreledger/internal/config"
	"github.com/bigredeye/scoreledger/internal/failedtable"
	"github.com/bigredeye/scoreledger/internal/gitsync"
	"github.com/bigredeye/scoreledger/internal/lock"
	lf "github.com/bigredeye/scoreledger/internal/logfield"
	"github.com/bigredeye/scoreledger/internal/models"
	"github.com/bigredeye/scoreledger/internal/notify"
	"github.com/bigredeye/scoreledger/internal/platform"
	"github.com/bigredeye/scoreledger/internal/platform/base"
	"github.com/bigredeye/scoreledger/internal/report"
	"github.com/bigredeye/scoreledger/internal/retry"
	"github.com/bigredeye/scoreledger/internal/scoreboard"
)

type Service struct {
	conf     *config.Config
	syncer   *gitsync.Syncer
	codec    *auditlog.Codec
	issues   base.IssueCommenter
	notifier *notify.Fanout
	logger   *zap.Logger

	pushPolicy retry.Policy
	now        func() time.Time
}

func NewService(conf *config.Config, syncer *gitsync.Syncer, issues base.IssueCommenter, notifier *notify.Fanout, logger *zap.Logger) *Service {
	return &Service{
		conf:       conf,
		syncer:     syncer,
		codec:      auditlog.NewCodec(conf.Tool),
		issues:     issues,
		notifier:   notifier,
		logger:     logger.Named("ledger"),
		pushPolicy: retry.FromConfig(conf.Push.Backoff),
		now:        time.Now,
	}
}

// NewFromConfig wires the git runner and the outer integrations.
func NewFromConfig(conf *config.Config, logger *zap.Logger) (*Service, error) {
	runner := gitsync.NewRunner(conf.Git.Binary, gitsync.Identity{Name: conf.Git.UserName, Email: conf.Git.UserEmail}, logger)
	syncer := gitsync.NewSyncerFromConfig(conf, runner, logger)

	issues, err := platform.NewIssueCommenter(conf, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.FromConfig(conf, logger)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create notifiers")
	}
	return NewService(conf, syncer, issues, notifier, logger), nil
}

type UpdateRequest struct {
	ReportPath string
	Submitter  string
	Repo       string
	CommitHash string
	// Exercise may be models.UnknownExercise, then it is read from the report metadata.
	Exercise string
	Groups   []string
	// MaxTotalScore caps the exercise score, negative means no cap.
	MaxTotalScore int
	RunURL        string

	SkipScoreboard  bool
	SkipFailedTable bool
	SkipIssue       bool
	SkipNotify      bool
}

type UpdateResult struct {
	RunID     string
	Exercise  string
	Score     int
	Failure   string
	Committed bool
	Commit    string
	Attempts  int
	Warnings  []string
}

func (s *Service) Update(ctx context.Context, req *UpdateRequest) (*UpdateResult, error) {
	result := &UpdateResult{RunID: uuid.NewString()}
	log := s.logger.With(lf.RunID(result.RunID), lf.Submitter(req.Submitter), lf.Repo(req.Repo))

	if err := validateRequest(req); err != nil {
		log.Error("Rejected update request", zap.Error(err))
		return result, err
	}

	rep, err := report.Load(req.ReportPath)
	if err != nil {
		log.Error("Failed to load score report", lf.File(req.ReportPath), zap.Error(err))
		return result, err
	}

	exercise, err := resolveExercise(req.Exercise, rep)
	if err != nil {
		log.Error("Failed to resolve exercise", zap.Error(err))
		return result, err
	}
	result.Exercise = exercise
	result.Score = rep.TotalScore()
	if req.MaxTotalScore >= 0 && result.Score > req.MaxTotalScore {
		result.Score = req.MaxTotalScore
	}
	result.Failure = rep.FailedStage()
	log = log.With(lf.Exercise(exercise))

	submission := &models.Submission{
		Exercise:   exercise,
		Submitter:  req.Submitter,
		Org:        s.conf.Repos.Org,
		Repo:       req.Repo,
		CommitHash: req.CommitHash,
		Groups:     req.Groups,
	}

	if !req.SkipScoreboard || !req.SkipFailedTable {
		if err := s.record(ctx, log, req, submission, result); err != nil {
			return result, err
		}
	}

	s.publish(ctx, log, req, rep, result)
	return result, nil
}

// validateRequest rejects identities the audit log could not decode back.
func validateRequest(req *UpdateRequest) error {
	fields := []struct {
		name  string
		value string
	}{
		{"submitter", req.Submitter},
		{"repo", req.Repo},
		{"commit", req.CommitHash},
	}
	for _, field := range fields {
		if field.value == "" {
			return errors.Wrapf(report.ErrInvalidReport, "%s is empty", field.name)
		}
		if strings.ContainsAny(field.value, " \t\r\n") {
			return errors.Wrapf(report.ErrInvalidReport, "%s %q contains whitespace", field.name, field.value)
		}
	}
	return nil
}

func resolveExercise(exercise string, rep *report.Report) (string, error) {
	if exercise == "" || exercise == models.UnknownExercise {
		name, ok := rep.ExerciseFromMetadata()
		if !ok {
			return "", errors.Wrapf(report.ErrInvalidReport, "exercise is %q and the metadata stage has no name", exercise)
		}
		exercise = name
	}
	if strings.TrimSpace(exercise) == "" || scoreboard.IsReserved(exercise) {
		return "", errors.Wrapf(report.ErrInvalidReport, "exercise name %q is reserved", exercise)
	}
	if strings.ContainsAny(exercise, "\r\n") {
		return "", errors.Wrapf(report.ErrInvalidReport, "exercise name %q spans several lines", exercise)
	}
	return exercise, nil
}

func (s *Service) lockPath(dir string) string {
	if filepath.IsAbs(s.conf.Lock.Path) {
		return s.conf.Lock.Path
	}
	return filepath.Join(dir, s.conf.Lock.Path)
}

// record runs the locked sync, merge, commit and push cycle.
func (s *Service) record(ctx context.Context, log *zap.Logger, req *UpdateRequest, submission *models.Submission, result *UpdateResult) error {
	shared := s.conf.Repos.Shared
	dir, err := s.syncer.EnsureCloned(ctx, shared)
	if err != nil {
		return err
	}

	return lock.With(ctx, log, s.lockPath(dir), s.conf.Lock.Timeout, s.conf.Lock.RetryDelay, func() error {
		pushFailed := false
		err := s.pushPolicy.Do(ctx, func(attempt int) error {
			result.Attempts = attempt
			pushFailed = false
			pushed, err := s.writeOnce(ctx, req, submission, result)
			if err != nil {
				pushFailed = errors.Is(err, errPushStage)
				return err
			}
			result.Committed = pushed.Committed
			result.Commit = pushed.Hash
			return nil
		}, func(attempt int, err error, next time.Duration) {
			log.Warn("Push failed, resynchronizing", lf.Attempt(attempt), lf.Backoff(next), zap.Error(err))
		})

		switch {
		case err == nil:
			log.Info("Recorded submission", lf.CommitHash(result.Commit), zap.Bool("committed", result.Committed), zap.Int("attempts", result.Attempts))
			return nil
		case pushFailed:
			log.Error("Giving up pushing", zap.Int("attempts", result.Attempts), zap.Error(err))
			return errors.Wrapf(ErrPushExhausted, "after %d attempts: %v", result.Attempts, err)
		default:
			log.Error("Failed to record submission", zap.Error(err))
			return err
		}
	})
}

// writeOnce rebuilds both files from the current remote state. Only push
// failures are retried, everything before the push has its own retries.
func (s *Service) writeOnce(ctx context.Context, req *UpdateRequest, submission *models.Submission, result *UpdateResult) (*gitsync.PushResult, error) {
	shared, branch := s.conf.Repos.Shared, s.conf.Repos.Branch
	now := s.now()

	dir, err := s.syncer.CleanAndCheckout(ctx, shared, branch)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	var files []string
	if !req.SkipScoreboard {
		path := filepath.Join(dir, s.conf.Files.Scoreboard)
		table, err := scoreboard.Load(path)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		table.Upsert(submission.Submitter, submission.Exercise, result.Score, req.MaxTotalScore, now)
		if err := table.Save(path); err != nil {
			return nil, retry.Permanent(err)
		}
		files = append(files, s.conf.Files.Scoreboard)
	}

	if !req.SkipFailedTable {
		path := filepath.Join(dir, s.conf.Files.FailedTable)
		table, err := failedtable.Load(path)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		failureLink := ""
		if result.Failure != "" {
			failureLink = req.RunURL
		}
		table.Upsert(submission.Repo, s.conf.RepoLink(submission.Repo), result.Failure, failureLink, now)
		if err := table.Save(path); err != nil {
			return nil, retry.Permanent(err)
		}
		files = append(files, s.conf.Files.FailedTable)
	}

	run := req.RunURL
	if run == "" {
		run = result.RunID
	}
	message := s.codec.Encode(submission,
		auditlog.Metadata{Key: "submitter", Value: submission.Submitter},
		auditlog.Metadata{Key: "exercise", Value: submission.Exercise},
		auditlog.Metadata{Key: "score", Value: strconv.Itoa(result.Score)},
		auditlog.Metadata{Key: "run", Value: run},
	)

	pushed, err := s.syncer.CommitAndPush(ctx, shared, branch, files, message)
	if err != nil {
		if errors.Is(err, gitsync.ErrPushRejected) || gitsync.IsTransient(err) {
			return nil, &pushError{err: err}
		}
		return nil, retry.Permanent(err)
	}
	return pushed, nil
}

var errPushStage = errors.New("push stage")

// pushError marks a retryable failure of the push itself, as opposed to the
// sync that precedes it.
type pushError struct {
	err error
}

func (e *pushError) Error() string { return e.err.Error() }

func (e *pushError) Unwrap() error { return e.err }

func (e *pushError) Is(target error) bool { return target == errPushStage }

// publish reports the result outside of the shared repository. Failures
// become warnings since the ledger is already updated.
func (s *Service) publish(ctx context.Context, log *zap.Logger, req *UpdateRequest, rep *report.Report, result *UpdateResult) {
	mu := sync.Mutex{}
	warn := func(format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
	}

	g := errgroup.Group{}
	if !req.SkipIssue && s.issues != nil {
		g.Go(func() error {
			body := rep.Markdown()
			if req.RunURL != "" {
				body += "\n" + req.RunURL + "\n"
			}
			title := base.IssueTitle(s.conf.Tool, result.Exercise)
			if err := s.issues.Comment(ctx, req.Repo, title, body); err != nil {
				log.Warn("Failed to comment issue", zap.Error(err))
				warn("issue comment: %v", err)
			}
			return nil
		})
	}
	if !req.SkipNotify && s.notifier != nil && s.notifier.Len() > 0 {
		g.Go(func() error {
			msg := &notify.Message{
				Title: fmt.Sprintf("%s: %s", s.conf.Tool, result.Exercise),
				Text:  summary(req, result),
				Link:  req.RunURL,
			}
			if stats := s.notifier.Deliver(ctx, msg); stats.Failed > 0 {
				warn("notifications: %d of %d failed", stats.Failed, stats.Failed+stats.Delivered)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func summary(req *UpdateRequest, result *UpdateResult) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "@%s scored %d in %s", req.Submitter, result.Score, req.Repo)
	if result.Failure != "" {
		fmt.Fprintf(&b, ", failed at %s", result.Failure)
	}
	return b.String()
}
