// Package ratelimit counts previous submissions recorded in the audit log of
// the shared repository and checks them against per-group quotas.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/bigredeye/scoreledger/internal/auditlog"
	lf "github.com/bigredeye/scoreledger/internal/logfield"
	"github.com/bigredeye/scoreledger/internal/models"
)

type Request struct {
	Submitter string
	Exercise  string
	Repo      string
	// Groups of the current submission.
	Groups []string
}

type QuotaResult struct {
	Quota    Quota
	Skipped  bool
	Applies  bool
	Count    int
	Exceeded bool
	Line     string
}

type Result struct {
	Quotas   []QuotaResult
	Exceeded bool
}

// Report joins the per quota lines.
func (r *Result) Report() string {
	lines := make([]string, 0, len(r.Quotas))
	for _, q := range r.Quotas {
		lines = append(lines, q.Line)
	}
	return strings.Join(lines, "\n")
}

type Limiter struct {
	codec   *auditlog.Codec
	history History
	logger  *zap.Logger
	now     func() time.Time
}

func NewLimiter(codec *auditlog.Codec, history History, logger *zap.Logger) *Limiter {
	return &Limiter{
		codec:   codec,
		history: history,
		logger:  logger.Named("ratelimit"),
		now:     time.Now,
	}
}

func (l *Limiter) Check(ctx context.Context, quotas []Quota, req *Request) (*Result, error) {
	log := l.logger.With(lf.Submitter(req.Submitter), lf.Exercise(req.Exercise), lf.Repo(req.Repo))
	now := l.now()

	quotas = distinct(quotas)
	entries, err := l.load(ctx, quotas, req, now)
	if err != nil {
		log.Error("Failed to read submission history", zap.Error(err))
		return nil, err
	}
	log.Debug("Loaded submission history", zap.Int("matched", len(entries)))

	result := &Result{}
	for _, quota := range quotas {
		qr := evaluate(quota, entries, req, now)
		if qr.Exceeded {
			result.Exceeded = true
			log.Warn("Quota exceeded", lf.Group(quota.Group), zap.Int("count", qr.Count), zap.Int("max", quota.MaxCount))
		}
		result.Quotas = append(result.Quotas, qr)
	}
	return result, nil
}

// load scans once from the widest finite window and keeps the entries of
// this submitter, exercise and repository.
func (l *Limiter) load(ctx context.Context, quotas []Quota, req *Request, now time.Time) ([]models.AuditEntry, error) {
	var widest time.Duration
	finite := false
	for _, q := range quotas {
		if q.Unlimited() {
			continue
		}
		finite = true
		if q.Window() > widest {
			widest = q.Window()
		}
	}
	if !finite {
		return nil, nil
	}

	commits, err := l.history.Commits(ctx, now.Add(-widest))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to scan audit log")
	}

	var entries []models.AuditEntry
	for _, c := range commits {
		s, ok := l.codec.Decode(c.Message)
		if !ok {
			continue
		}
		if s.Exercise != req.Exercise || s.Submitter != req.Submitter || s.Repo != req.Repo {
			continue
		}
		entries = append(entries, models.AuditEntry{Submission: s, Hash: c.Hash, AuthoredAt: c.CommittedAt})
	}
	return entries, nil
}

func evaluate(quota Quota, entries []models.AuditEntry, req *Request, now time.Time) QuotaResult {
	qr := QuotaResult{Quota: quota}
	name := "all groups"
	if quota.Group != "" {
		name = fmt.Sprintf("group %q", quota.Group)
	}

	if quota.Unlimited() {
		qr.Skipped = true
		qr.Line = fmt.Sprintf("%s: unlimited", name)
		return qr
	}

	since := now.Add(-quota.Window())
	for _, e := range entries {
		if e.AuthoredAt.Before(since) {
			continue
		}
		if quota.Group != "" && !auditlog.HasGroup(e.Groups, quota.Group) {
			continue
		}
		qr.Count++
	}

	qr.Applies = quota.Group == "" || auditlog.HasGroup(req.Groups, quota.Group)
	qr.Exceeded = qr.Applies && qr.Count+1 > quota.MaxCount

	status := "ok"
	switch {
	case qr.Exceeded:
		status = "exceeded"
	case !qr.Applies:
		status = "not applicable"
	}
	qr.Line = fmt.Sprintf("%s: %d/%d submissions within %s, %s",
		name, qr.Count+1, quota.MaxCount, units.HumanDuration(quota.Window()), status)
	return qr
}

func distinct(quotas []Quota) []Quota {
	out := make([]Quota, 0, len(quotas))
	for _, q := range quotas {
		if !slices.Contains(out, q) {
			out = append(out, q)
		}
	}
	return out
}
