package gitlab

import (
	"context"

	"github.com/pkg/errors"
	"github.com/xanzy/go-gitlab"
	"go.uber.org/zap"

	lf "github.com/bigredeye/scoreledger/internal/logfield"
)

func (c *ClientGitlab) Comment(ctx context.Context, repo, title, body string) error {
	project := c.projectPath(repo)
	log := c.Logger.With(lf.Repo(repo), zap.String("title", title))

	iid, err := c.findIssue(ctx, project, title)
	if err != nil {
		log.Error("Failed to list issues", zap.Error(err))
		return errors.Wrap(err, "Failed to list issues")
	}

	if iid == 0 {
		issue, _, err := c.Gitlab.Issues.CreateIssue(project, &gitlab.CreateIssueOptions{Title: &title}, gitlab.WithContext(ctx))
		if err != nil {
			log.Error("Failed to create issue", zap.Error(err))
			return errors.Wrap(err, "Failed to create issue")
		}
		iid = issue.IID
		log.Info("Created issue", zap.Int("issue", iid))
	}

	if _, _, err := c.Gitlab.Notes.CreateIssueNote(project, iid, &gitlab.CreateIssueNoteOptions{Body: &body}, gitlab.WithContext(ctx)); err != nil {
		log.Error("Failed to comment issue", zap.Int("issue", iid), zap.Error(err))
		return errors.Wrap(err, "Failed to comment issue")
	}
	log.Info("Commented issue", zap.Int("issue", iid))
	return nil
}

func (c *ClientGitlab) findIssue(ctx context.Context, project, title string) (int, error) {
	options := &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{PerPage: 50, Page: 1},
		State:       gitlab.String("opened"),
		Search:      &title,
	}
	for {
		issues, resp, err := c.Gitlab.Issues.ListProjectIssues(project, options, gitlab.WithContext(ctx))
		if err != nil {
			return 0, err
		}
		for _, issue := range issues {
			if issue.Title == title {
				return issue.IID, nil
			}
		}
		if resp.NextPage == 0 {
			return 0, nil
		}
		options.Page = resp.NextPage
	}
}
