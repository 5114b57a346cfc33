package ledger

import (
	"github.com/pkg/errors"

	"github.com/bigredeye/scoreledger/internal/gitsync"
	"github.com/bigredeye/scoreledger/internal/lock"
	"github.com/bigredeye/scoreledger/internal/report"
	"github.com/bigredeye/scoreledger/internal/scoreboard"
)

// ErrPushExhausted means every push attempt lost the race or failed on the network.
var ErrPushExhausted = errors.New("push retries exhausted")

const (
	KindLockTimeout    = "lock_timeout"
	KindBranchNotFound = "branch_not_found"
	KindPushExhausted  = "push_exhausted"
	KindTransient      = "transient"
	KindInvalidReport  = "invalid_report"
	KindCorruptLedger  = "corrupt_scoreboard"
	KindInternal       = "internal"
)

// Kind maps err to a stable identifier for machine readable results.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, lock.ErrLockTimeout):
		return KindLockTimeout
	case errors.Is(err, gitsync.ErrBranchNotFound):
		return KindBranchNotFound
	case errors.Is(err, ErrPushExhausted):
		return KindPushExhausted
	case errors.Is(err, report.ErrInvalidReport):
		return KindInvalidReport
	case errors.Is(err, scoreboard.ErrMalformed):
		return KindCorruptLedger
	case gitsync.IsTransient(err):
		return KindTransient
	default:
		return KindInternal
	}
}
