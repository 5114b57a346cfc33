package gitea

import (
	"code.gitea.io/sdk/gitea"

	"github.com/bigredeye/scoreledger/internal/platform/base"
)

type ClientGitea struct {
	*base.ClientBase
	Gitea *gitea.Client
}

func (c *ClientGitea) owner() string {
	return c.Config.Repos.Org
}

var _ base.IssueCommenter = &ClientGitea{}
