package gitea

import (
	"context"

	"code.gitea.io/sdk/gitea"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	lf "github.com/bigredeye/scoreledger/internal/logfield"
)

func (c *ClientGitea) Comment(ctx context.Context, repo, title, body string) error {
	c.Gitea.SetContext(ctx)
	log := c.Logger.With(lf.Repo(repo), zap.String("title", title))

	index, err := c.findIssue(repo, title)
	if err != nil {
		log.Error("Failed to list issues", zap.Error(err))
		return errors.Wrap(err, "Failed to list issues")
	}

	if index == 0 {
		issue, _, err := c.Gitea.CreateIssue(c.owner(), repo, gitea.CreateIssueOption{Title: title})
		if err != nil {
			log.Error("Failed to create issue", zap.Error(err))
			return errors.Wrap(err, "Failed to create issue")
		}
		index = issue.Index
		log.Info("Created issue", zap.Int64("issue", index))
	}

	if _, _, err := c.Gitea.CreateIssueComment(c.owner(), repo, index, gitea.CreateIssueCommentOption{Body: body}); err != nil {
		log.Error("Failed to comment issue", zap.Int64("issue", index), zap.Error(err))
		return errors.Wrap(err, "Failed to comment issue")
	}
	log.Info("Commented issue", zap.Int64("issue", index))
	return nil
}

// findIssue returns the index of the open issue with the exact title, or 0.
func (c *ClientGitea) findIssue(repo, title string) (int64, error) {
	options := gitea.ListIssueOption{
		ListOptions: gitea.ListOptions{Page: 1, PageSize: 50},
		State:       gitea.StateOpen,
		Type:        gitea.IssueTypeIssue,
		KeyWord:     title,
	}
	for {
		issues, _, err := c.Gitea.ListRepoIssues(c.owner(), repo, options)
		if err != nil {
			return 0, err
		}
		for _, issue := range issues {
			if issue.Title == title {
				return issue.Index, nil
			}
		}
		if len(issues) < options.PageSize {
			return 0, nil
		}
		options.Page++
	}
}
