// Package gitsync keeps a local working copy of a shared repository in step
// with its remote and publishes commits back to it.
package gitsync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bigredeye/scoreledger/internal/config"
	lf "github.com/bigredeye/scoreledger/internal/logfield"
	"github.com/bigredeye/scoreledger/internal/retry"
)

type Syncer struct {
	git    Runner
	logger *zap.Logger

	reposDir         string
	repoURL          func(name string) string
	remoteRef        string
	removeStaleLocks bool
	staleLockAge     time.Duration
	keepPaths        []string
	fetchPolicy      retry.Policy
}

type Options struct {
	ReposDir  string
	RepoURL   func(name string) string
	RemoteRef string
	// RemoveStaleLocks deletes git lock files left by crashed processes.
	// Only safe while holding the ledger lock.
	RemoveStaleLocks bool
	// StaleLockAge is how old a lock file must be before it is removed.
	// Younger locks may belong to a git process of another checkout.
	StaleLockAge time.Duration
	// KeepPaths survive `git clean`.
	KeepPaths   []string
	FetchPolicy retry.Policy
}

func NewSyncer(git Runner, logger *zap.Logger, opts Options) *Syncer {
	return &Syncer{
		git:              git,
		logger:           logger.Named("sync"),
		reposDir:         opts.ReposDir,
		repoURL:          opts.RepoURL,
		remoteRef:        opts.RemoteRef,
		removeStaleLocks: opts.RemoveStaleLocks,
		staleLockAge:     opts.StaleLockAge,
		keepPaths:        opts.KeepPaths,
		fetchPolicy:      opts.FetchPolicy,
	}
}

func NewSyncerFromConfig(conf *config.Config, git Runner, logger *zap.Logger) *Syncer {
	return NewSyncer(git, logger, Options{
		ReposDir:         conf.Repos.Dir,
		RepoURL:          conf.RepoURL,
		RemoteRef:        conf.Repos.RemoteRef,
		RemoveStaleLocks: conf.Sync.RemoveStaleLocks,
		StaleLockAge:     conf.Sync.StaleLockAge,
		KeepPaths:        []string{conf.Lock.Path},
		FetchPolicy:      retry.FromConfig(conf.Sync.Backoff),
	})
}

func (s *Syncer) RepoDir(name string) string {
	return filepath.Join(s.reposDir, name)
}

func (s *Syncer) remoteRefFor(branch string) string {
	if s.remoteRef != "" {
		return s.remoteRef
	}
	return "origin/" + branch
}

// EnsureCloned clones the repository unless a working copy already exists.
// Concurrent callers clone into private directories and the first rename wins.
func (s *Syncer) EnsureCloned(ctx context.Context, name string) (string, error) {
	dir := s.RepoDir(name)
	if isWorkingCopy(dir) {
		return dir, nil
	}
	log := s.logger.With(lf.Repo(name))

	if err := os.MkdirAll(s.reposDir, 0o755); err != nil {
		return "", errors.Wrap(err, "Failed to create repos dir")
	}
	tmp, err := os.MkdirTemp(s.reposDir, "."+name+".clone-")
	if err != nil {
		return "", errors.Wrap(err, "Failed to create clone dir")
	}
	defer os.RemoveAll(tmp)

	url := s.repoURL(name)
	log.Info("Cloning repository", zap.String("url", url))
	err = s.withFetchRetry(ctx, log, func() error {
		_, err := s.git.Run(ctx, tmp, "clone", "--no-checkout", url, ".")
		return classify(err, false)
	})
	if err != nil {
		log.Error("Failed to clone repository", zap.Error(err))
		return "", errors.Wrap(err, "Failed to clone repository")
	}

	if err := os.Rename(tmp, dir); err != nil {
		if isWorkingCopy(dir) {
			log.Info("Repository was cloned concurrently")
			return dir, nil
		}
		return "", errors.Wrap(err, "Failed to move cloned repository")
	}
	log.Info("Cloned repository")
	return dir, nil
}

func isWorkingCopy(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

func (s *Syncer) withFetchRetry(ctx context.Context, log *zap.Logger, op func() error) error {
	return s.fetchPolicy.Do(ctx, func(attempt int) error {
		err := op()
		if err != nil && !IsTransient(err) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error, next time.Duration) {
		log.Warn("Transient git failure, retrying", lf.Attempt(attempt), lf.Backoff(next), zap.Error(err))
	})
}

// Fetch updates every remote ref, retrying transient network failures.
func (s *Syncer) Fetch(ctx context.Context, name string) error {
	dir := s.RepoDir(name)
	log := s.logger.With(lf.Repo(name))
	return s.withFetchRetry(ctx, log, func() error {
		_, err := s.git.Run(ctx, dir, "fetch", "--tags", "--all", "--force", "--prune")
		return classify(err, false)
	})
}

// VerifyBranch fails with ErrBranchNotFound unless the remote tracking ref exists.
func (s *Syncer) VerifyBranch(ctx context.Context, name, branch string) (string, error) {
	ref := s.remoteRefFor(branch)
	_, err := s.git.Run(ctx, s.RepoDir(name), "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		s.logger.Error("Branch not found upstream", lf.Repo(name), lf.Branch(branch), zap.String("ref", ref))
		return "", &classified{
			kind: ErrBranchNotFound,
			err:  errors.Errorf("%s does not exist in %s, create branch %q upstream first", ref, name, branch),
		}
	}
	return ref, nil
}

// CleanAndCheckout discards every local change and leaves branch checked out
// at its remote state.
func (s *Syncer) CleanAndCheckout(ctx context.Context, name, branch string) (string, error) {
	log := s.logger.With(lf.Repo(name), lf.Branch(branch))

	dir, err := s.EnsureCloned(ctx, name)
	if err != nil {
		return "", err
	}

	if s.removeStaleLocks {
		if err := removeGitLocks(dir, s.staleLockAge, log); err != nil {
			return "", err
		}
	}

	if err := s.Fetch(ctx, name); err != nil {
		log.Error("Failed to fetch", zap.Error(err))
		return "", errors.Wrap(err, "Failed to fetch")
	}

	ref, err := s.VerifyBranch(ctx, name, branch)
	if err != nil {
		return "", err
	}

	if _, err := s.git.Run(ctx, dir, "reset", "--hard", ref); err != nil {
		return "", errors.Wrap(classify(err, false), "Failed to reset")
	}

	args := []string{"clean", "-d", "-f", "-x"}
	for _, keep := range s.keepPaths {
		if keep != "" && !strings.HasPrefix(filepath.ToSlash(keep), ".git/") {
			args = append(args, "-e", keep)
		}
	}
	if _, err := s.git.Run(ctx, dir, args...); err != nil {
		return "", errors.Wrap(err, "Failed to clean")
	}

	if _, err := s.git.Run(ctx, dir, "checkout", "-f", "-B", branch, ref); err != nil {
		return "", errors.Wrap(classify(err, false), "Failed to checkout")
	}

	log.Debug("Repository is clean", zap.String("ref", ref))
	return dir, nil
}

var gitLockNames = []string{"index.lock", "HEAD.lock", "ORIG_HEAD.lock", "FETCH_HEAD.lock", "config.lock", "packed-refs.lock", "shallow.lock"}

func removeGitLocks(dir string, age time.Duration, log *zap.Logger) error {
	gitDir := filepath.Join(dir, ".git")
	remove := func(path string) error {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "Failed to stat git lock")
		}
		if held := time.Since(info.ModTime()); held < age {
			log.Debug("Keeping recent git lock", lf.File(path), zap.Duration("age", held))
			return nil
		}
		err = os.Remove(path)
		switch {
		case err == nil:
			log.Warn("Removed stale git lock", lf.File(path))
		case errors.Is(err, os.ErrNotExist):
		default:
			return errors.Wrap(err, "Failed to remove stale git lock")
		}
		return nil
	}

	for _, name := range gitLockNames {
		if err := remove(filepath.Join(gitDir, name)); err != nil {
			return err
		}
	}

	refs := filepath.Join(gitDir, "refs")
	return filepath.WalkDir(refs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".lock") {
			return remove(path)
		}
		return nil
	})
}

type PushResult struct {
	Committed bool
	Pushed    bool
	Hash      string
	Skipped   []string
}

// CommitAndPush stages files, commits when the tree changed and pushes to branch.
// Missing files are skipped. A rejected push yields ErrPushRejected.
func (s *Syncer) CommitAndPush(ctx context.Context, name, branch string, files []string, message string) (*PushResult, error) {
	dir := s.RepoDir(name)
	log := s.logger.With(lf.Repo(name), lf.Branch(branch))
	result := &PushResult{}

	for _, file := range files {
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			log.Warn("Skipping missing file", lf.File(file), zap.Error(err))
			result.Skipped = append(result.Skipped, file)
			continue
		}
		if _, err := s.git.Run(ctx, dir, "add", "--", file); err != nil {
			log.Warn("Failed to stage file", lf.File(file), zap.Error(err))
			result.Skipped = append(result.Skipped, file)
		}
	}

	staged, err := s.git.Run(ctx, dir, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, errors.Wrap(err, "Failed to inspect index")
	}
	if strings.TrimSpace(staged) == "" {
		log.Info("Nothing to commit")
		return result, nil
	}

	if _, err := s.git.Run(ctx, dir, "commit", "--quiet", "--no-verify", "-m", message); err != nil {
		return nil, errors.Wrap(err, "Failed to commit")
	}
	result.Committed = true
	return s.push(ctx, dir, branch, result, log)
}

func (s *Syncer) push(ctx context.Context, dir, branch string, result *PushResult, log *zap.Logger) (*PushResult, error) {
	hash, err := s.git.Run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return nil, errors.Wrap(err, "Failed to resolve HEAD")
	}
	result.Hash = strings.TrimSpace(hash)

	if _, err := s.git.Run(ctx, dir, "push", "origin", "HEAD:refs/heads/"+branch); err != nil {
		err = classify(err, true)
		log.Warn("Push failed", lf.CommitHash(result.Hash), zap.Error(err))
		return result, err
	}
	result.Pushed = true
	log.Info("Pushed", lf.CommitHash(result.Hash))
	return result, nil
}
