package gitlab

import (
	"fmt"

	"github.com/xanzy/go-gitlab"

	base "github.com/bigredeye/scoreledger/internal/platform/base"
)

type ClientGitlab struct {
	*base.ClientBase
	Gitlab *gitlab.Client
}

func (c *ClientGitlab) projectPath(repo string) string {
	return fmt.Sprintf("%s/%s", c.Config.Repos.Org, repo)
}

var _ base.IssueCommenter = &ClientGitlab{}
