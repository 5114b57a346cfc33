package base

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bigredeye/scoreledger/internal/config"
)

// IssueCommenter posts grading results to the issue tracker of a submitter repository.
type IssueCommenter interface {
	// Comment adds body to the open issue titled title, creating the issue if needed.
	Comment(ctx context.Context, repo, title, body string) error
}

type ClientBase struct {
	Config *config.Config
	Logger *zap.Logger
}

func IssueTitle(tool, exercise string) string {
	return fmt.Sprintf("%s results for %s", tool, exercise)
}

type noopCommenter struct {
	logger *zap.Logger
}

func NewNoopCommenter(logger *zap.Logger) IssueCommenter {
	return &noopCommenter{logger: logger}
}

func (n *noopCommenter) Comment(ctx context.Context, repo, title, body string) error {
	n.logger.Debug("Issue comments are disabled", zap.String("repo", repo), zap.String("title", title))
	return nil
}
