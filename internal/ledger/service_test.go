package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bigredeye/scoreledger/internal/config"
	"github.com/bigredeye/scoreledger/internal/failedtable"
	"github.com/bigredeye/scoreledger/internal/gitsync"
	"github.com/bigredeye/scoreledger/internal/gitsync/gittest"
	"github.com/bigredeye/scoreledger/internal/lock"
	"github.com/bigredeye/scoreledger/internal/notify"
	"github.com/bigredeye/scoreledger/internal/ratelimit"
	"github.com/bigredeye/scoreledger/internal/report"
	"github.com/bigredeye/scoreledger/internal/scoreboard"
)

// hookRunner calls beforePush ahead of every git push. With unreachable set
// every fetch fails the way git does when the host cannot be resolved.
type hookRunner struct {
	gitsync.Runner

	mu          sync.Mutex
	pushes      int
	beforePush  func(n int)
	unreachable bool
}

func (h *hookRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if len(args) > 0 && args[0] == "fetch" && h.unreachable {
		return "", &gitsync.CommandError{
			Args:     args,
			Stderr:   "fatal: unable to access 'https://git.example.com/course/shared.git/': Could not resolve host: git.example.com\n",
			ExitCode: 128,
			Err:      errors.New("exit status 128"),
		}
	}
	if len(args) > 0 && args[0] == "push" {
		h.mu.Lock()
		h.pushes++
		n := h.pushes
		h.mu.Unlock()
		if h.beforePush != nil {
			h.beforePush(n)
		}
	}
	return h.Runner.Run(ctx, dir, args...)
}

type fakeIssues struct {
	mu       sync.Mutex
	comments []string
}

func (f *fakeIssues) Comment(ctx context.Context, repo, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, repo+": "+title)
	return nil
}

type env struct {
	t       *testing.T
	remote  *gittest.Remote
	conf    *config.Config
	runner  *hookRunner
	issues  *fakeIssues
	service *Service
}

func newEnv(t *testing.T) *env {
	remote := gittest.NewRemote(t, "course", "shared", "grading")

	conf := &config.Config{Tool: "scoreledger"}
	conf.Repos.Dir = t.TempDir()
	conf.Repos.BaseURL = remote.BaseURL
	conf.Repos.Org = "course"
	conf.Repos.Shared = "shared"
	conf.Repos.Branch = "grading"
	conf.Files.Scoreboard = "scoreboard.csv"
	conf.Files.FailedTable = "failed-table.md"
	conf.Lock.Path = ".git/scoreledger.lock"
	conf.Lock.Timeout = 5 * time.Second
	conf.Lock.RetryDelay = 10 * time.Millisecond
	conf.Sync.RemoveStaleLocks = true
	conf.Sync.Backoff = config.Backoff{Initial: time.Millisecond, Multiplier: 2, Ceiling: 8 * time.Millisecond}
	conf.Push.Backoff = config.Backoff{Initial: time.Millisecond, Multiplier: 2, Ceiling: 8 * time.Millisecond}
	conf.Platform.Mode = config.NoneMode

	runner := &hookRunner{Runner: gitsync.NewRunner("git", gitsync.Identity{Name: "ledger", Email: "ledger@localhost"}, zap.NewNop())}
	syncer := gitsync.NewSyncerFromConfig(conf, runner, zap.NewNop())
	issues := &fakeIssues{}
	service := NewService(conf, syncer, issues, notify.NewFanout(zap.NewNop()), zap.NewNop())

	return &env{t: t, remote: remote, conf: conf, runner: runner, issues: issues, service: service}
}

func (e *env) writeReport(content string) string {
	path := filepath.Join(e.t.TempDir(), "score.json")
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *env) scoreboard() *scoreboard.Table {
	table, err := scoreboard.Parse(strings.NewReader(e.remote.Show(e.t, "scoreboard.csv")))
	require.NoError(e.t, err)
	return table
}

func (e *env) failedTable() *failedtable.Table {
	table, err := failedtable.Parse(strings.NewReader(e.remote.Show(e.t, "failed-table.md")))
	require.NoError(e.t, err)
	return table
}

const (
	passing = `[{"name": "tests", "results": [{"score": 60, "comment": ""}, {"score": 40, "comment": ""}]}]`
	failing = `[{"name": "compile", "force_quit": true, "results": [{"score": 0, "comment": "error"}]}]`
)

func update(submitter, exercise, reportPath string) *UpdateRequest {
	return &UpdateRequest{
		ReportPath:    reportPath,
		Submitter:     submitter,
		Repo:          submitter + "-repo",
		CommitHash:    "deadbeef",
		Exercise:      exercise,
		MaxTotalScore: -1,
		RunURL:        "https://ci.example.com/run/1",
	}
}

func TestUpdateRecordsScoresAndFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	result, err := e.service.Update(ctx, update("alice", "hw1", e.writeReport(passing)))
	require.NoError(t, err)
	require.True(t, result.Committed)
	require.Equal(t, 100, result.Score)
	require.Equal(t, 1, result.Attempts)
	require.NotEmpty(t, result.RunID)

	_, err = e.service.Update(ctx, update("bob", "hw1", e.writeReport(failing)))
	require.NoError(t, err)

	_, err = e.service.Update(ctx, update("alice", "hw2", e.writeReport(passing)))
	require.NoError(t, err)

	table := e.scoreboard()
	require.Equal(t, []string{"", "last_edit", "total", "hw1", "hw2"}, table.Header)
	require.Equal(t, "bob", table.Rows[0][0])
	require.Equal(t, "alice", table.Rows[1][0])
	require.Equal(t, "200", table.Cell("alice", "total"))
	require.Equal(t, "0", table.Cell("bob", "hw1"))
	require.Equal(t, "", table.Cell("bob", "hw2"))

	failed := e.failedTable()
	require.Len(t, failed.Rows, 1)
	row := failed.Find("bob-repo")
	require.NotNil(t, row)
	require.Equal(t, "compile", row.Failure.Text)
	require.Equal(t, "https://ci.example.com/run/1", row.Failure.URL)

	require.Equal(t, []string{
		"scoreledger: update scoreboard for hw2 by @alice in course/alice-repo@deadbeef",
		"scoreledger: update scoreboard for hw1 by @bob in course/bob-repo@deadbeef",
		"scoreledger: update scoreboard for hw1 by @alice in course/alice-repo@deadbeef",
		"Initial commit",
	}, e.remote.Subjects(t))
	require.Len(t, e.issues.comments, 3)
	require.Equal(t, "alice-repo: scoreledger results for hw2", e.issues.comments[2])
}

func TestFixedSubmissionLeavesFailedTable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.service.Update(ctx, update("bob", "hw1", e.writeReport(failing)))
	require.NoError(t, err)
	require.Len(t, e.failedTable().Rows, 1)

	_, err = e.service.Update(ctx, update("bob", "hw1", e.writeReport(passing)))
	require.NoError(t, err)
	require.Empty(t, e.failedTable().Rows)
	require.Equal(t, "100", e.scoreboard().Cell("bob", "hw1"))
}

func TestPushRetryKeepsConcurrentWrite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.runner.beforePush = func(n int) {
		if n == 1 {
			e.remote.Commit(t, "scoreledger: update scoreboard for hw1 by @carol in course/carol-repo@cafe",
				map[string]string{"scoreboard.csv": ",last_edit,total,hw1\ncarol,2023-01-01 00:00:00,7,7\n"})
		}
	}

	result, err := e.service.Update(ctx, update("alice", "hw1", e.writeReport(passing)))
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempts)

	table := e.scoreboard()
	require.Equal(t, "7", table.Cell("carol", "hw1"))
	require.Equal(t, "100", table.Cell("alice", "hw1"))
}

func TestPushExhausted(t *testing.T) {
	e := newEnv(t)

	e.runner.beforePush = func(n int) {
		e.remote.Commit(t, "concurrent", map[string]string{"noise.txt": time.Now().String()})
	}

	result, err := e.service.Update(context.Background(), update("alice", "hw1", e.writeReport(passing)))
	require.ErrorIs(t, err, ErrPushExhausted)
	require.Equal(t, KindPushExhausted, Kind(err))
	require.Equal(t, len(e.service.pushPolicy.Delays())+1, result.Attempts)
}

func TestMissingBranchIsNotRetried(t *testing.T) {
	e := newEnv(t)
	e.conf.Repos.Branch = "missing"

	result, err := e.service.Update(context.Background(), update("alice", "hw1", e.writeReport(passing)))
	require.Error(t, err)
	require.Equal(t, KindBranchNotFound, Kind(err))
	require.Equal(t, 1, result.Attempts)
	require.Zero(t, e.runner.pushes)
}

func TestLockTimeout(t *testing.T) {
	e := newEnv(t)
	e.conf.Lock.Timeout = 50 * time.Millisecond

	dir, err := e.service.syncer.EnsureCloned(context.Background(), "shared")
	require.NoError(t, err)
	held, err := lock.Acquire(context.Background(), zap.NewNop(), e.service.lockPath(dir), time.Second, time.Millisecond)
	require.NoError(t, err)
	defer held.Release()

	_, err = e.service.Update(context.Background(), update("alice", "hw1", e.writeReport(passing)))
	require.Equal(t, KindLockTimeout, Kind(err))
	require.Equal(t, []string{"Initial commit"}, e.remote.Subjects(t))
}

func TestInvalidReportNeverTouchesLedger(t *testing.T) {
	e := newEnv(t)

	_, err := e.service.Update(context.Background(), update("alice", "hw1", e.writeReport(`{"testrecords": []}`)))
	require.Equal(t, KindInvalidReport, Kind(err))

	_, err = e.service.Update(context.Background(), update("alice", "unknown", e.writeReport(passing)))
	require.Equal(t, KindInvalidReport, Kind(err))

	require.Equal(t, []string{"Initial commit"}, e.remote.Subjects(t))
	require.Empty(t, e.issues.comments)
}

func TestUnverifiableIdentityIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	noCommit := update("alice", "hw1", e.writeReport(passing))
	noCommit.CommitHash = ""
	_, err := e.service.Update(ctx, noCommit)
	require.ErrorIs(t, err, report.ErrInvalidReport)
	require.Equal(t, KindInvalidReport, Kind(err))

	spaced := update("alice", "hw1", e.writeReport(passing))
	spaced.Submitter = "alice smith"
	_, err = e.service.Update(ctx, spaced)
	require.Equal(t, KindInvalidReport, Kind(err))

	require.Equal(t, []string{"Initial commit"}, e.remote.Subjects(t))
	require.Zero(t, e.runner.pushes)
}

func TestReservedExerciseNames(t *testing.T) {
	e := newEnv(t)

	for _, exercise := range []string{"total", "last_edit", " "} {
		_, err := e.service.Update(context.Background(), update("alice", exercise, e.writeReport(passing)))
		require.Equal(t, KindInvalidReport, Kind(err), exercise)
	}
	require.Equal(t, []string{"Initial commit"}, e.remote.Subjects(t))
}

func TestCorruptScoreboardIsNotRetried(t *testing.T) {
	e := newEnv(t)
	e.remote.Commit(t, "hand edit", map[string]string{"scoreboard.csv": "name,score\nalice,1\n"})

	result, err := e.service.Update(context.Background(), update("bob", "hw1", e.writeReport(passing)))
	require.ErrorIs(t, err, scoreboard.ErrMalformed)
	require.Equal(t, KindCorruptLedger, Kind(err))
	require.Equal(t, 1, result.Attempts)
	require.Zero(t, e.runner.pushes)
}

func TestUnreachableRemoteIsTransient(t *testing.T) {
	e := newEnv(t)
	_, err := e.service.syncer.EnsureCloned(context.Background(), "shared")
	require.NoError(t, err)
	e.runner.unreachable = true

	result, err := e.service.Update(context.Background(), update("alice", "hw1", e.writeReport(passing)))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPushExhausted)
	require.Equal(t, KindTransient, Kind(err))
	require.Equal(t, 1, result.Attempts)
	require.Zero(t, e.runner.pushes)
}

func TestUnknownExerciseFromMetadata(t *testing.T) {
	e := newEnv(t)
	content := `[{"name": "metadata", "results": [{"score": 0, "comment": "hw3-2023"}]},` +
		`{"name": "tests", "results": [{"score": 30, "comment": ""}]}]`

	result, err := e.service.Update(context.Background(), update("alice", "unknown", e.writeReport(content)))
	require.NoError(t, err)
	require.Equal(t, "hw3", result.Exercise)
	require.Equal(t, "30", e.scoreboard().Cell("alice", "hw3"))
}

func TestScoreCap(t *testing.T) {
	e := newEnv(t)
	req := update("alice", "hw1", e.writeReport(passing))
	req.MaxTotalScore = 80

	result, err := e.service.Update(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 80, result.Score)
	require.Equal(t, "80", e.scoreboard().Cell("alice", "total"))
}

func TestCheckCountsRecordedSubmissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		req := update("alice", "hw1", e.writeReport(passing))
		req.Groups = []string{"retake"}
		// a changing score forces a commit per run
		req.MaxTotalScore = 50 + i
		_, err := e.service.Update(ctx, req)
		require.NoError(t, err)
	}

	check := &CheckRequest{
		Submitter: "alice",
		Repo:      "alice-repo",
		Exercise:  "hw1",
		Groups:    []string{"retake"},
		Quotas:    []ratelimit.Quota{{Group: "retake", MaxCount: 2, Hours: 24}, {MaxCount: 3, Hours: 24}},
	}
	result, err := e.service.Check(ctx, check)
	require.NoError(t, err)
	require.True(t, result.Exceeded)
	require.Equal(t, 2, result.Quotas[0].Count)
	require.False(t, result.Quotas[1].Exceeded)

	check.Submitter = "bob"
	check.Repo = "bob-repo"
	result, err = e.service.Check(ctx, check)
	require.NoError(t, err)
	require.False(t, result.Exceeded)
}

func TestKind(t *testing.T) {
	require.Equal(t, "", Kind(nil))
	require.Equal(t, KindInternal, Kind(os.ErrPermission))
	require.Equal(t, KindLockTimeout, Kind(lock.ErrLockTimeout))
	require.Equal(t, KindBranchNotFound, Kind(gitsync.ErrBranchNotFound))
	require.Equal(t, KindTransient, Kind(gitsync.ErrTransient))
	require.Equal(t, KindCorruptLedger, Kind(scoreboard.ErrMalformed))
	require.Equal(t, KindInvalidReport, Kind(report.ErrInvalidReport))
}

func TestSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	snap, err := e.service.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.Scoreboard.Rows)
	require.Empty(t, snap.FailedTable.Rows)

	_, err = e.service.Update(ctx, update("bob", "hw1", e.writeReport(failing)))
	require.NoError(t, err)

	snap, err = e.service.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "0", snap.Scoreboard.Cell("bob", "total"))
	require.NotNil(t, snap.FailedTable.Find("bob-repo"))
}
