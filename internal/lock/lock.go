// Package lock serializes ledger writers sharing one working copy on a host.
package lock

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	lf "github.com/bigredeye/scoreledger/internal/logfield"
)

var ErrLockTimeout = errors.New("timed out waiting for repository lock")

type Scoped struct {
	flock    *flock.Flock
	logger   *zap.Logger
	acquired time.Time
}

// Acquire blocks until the exclusive lock at path is held or timeout expires.
func Acquire(ctx context.Context, logger *zap.Logger, path string, timeout, retryDelay time.Duration) (*Scoped, error) {
	log := logger.With(lf.LockPath(path))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "Failed to create lock directory")
	}
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Lock wait timed out", zap.Duration("timeout", timeout))
			return nil, errors.Wrapf(ErrLockTimeout, "%s after %s", path, timeout)
		}
		return nil, errors.Wrap(err, "Failed to acquire lock")
	}
	if !locked {
		return nil, errors.Wrapf(ErrLockTimeout, "%s after %s", path, timeout)
	}

	log.Debug("Acquired lock", zap.Duration("waited", time.Since(started)))
	return &Scoped{flock: fl, logger: log, acquired: time.Now()}, nil
}

// Release is safe to call more than once.
func (s *Scoped) Release() {
	if s == nil || !s.flock.Locked() {
		return
	}
	if err := s.flock.Unlock(); err != nil {
		s.logger.Error("Failed to release lock", zap.Error(err))
		return
	}
	s.logger.Debug("Released lock", zap.Duration("held", time.Since(s.acquired)))
}

// With runs fn while holding the lock and releases it on every exit path.
func With(ctx context.Context, logger *zap.Logger, path string, timeout, retryDelay time.Duration, fn func() error) error {
	held, err := Acquire(ctx, logger, path, timeout, retryDelay)
	if err != nil {
		return err
	}
	defer held.Release()
	return fn()
}
