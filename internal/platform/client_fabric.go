package platform

import (
	"fmt"

	gitea "code.gitea.io/sdk/gitea"
	"github.com/pkg/errors"
	gitlab "github.com/xanzy/go-gitlab"
	"go.uber.org/zap"

	"github.com/bigredeye/scoreledger/internal/config"
	"github.com/bigredeye/scoreledger/internal/platform/base"
	gitea_client "github.com/bigredeye/scoreledger/internal/platform/gitea"
	gitlab_client "github.com/bigredeye/scoreledger/internal/platform/gitlab"
)

func NewIssueCommenter(conf *config.Config, logger *zap.Logger) (base.IssueCommenter, error) {
	logger = logger.Named("platform")
	switch conf.Platform.Mode {
	case config.GitlabMode:
		client, err := gitlab.NewClient(conf.Platform.GitLab.Token, gitlab.WithBaseURL(conf.Platform.GitLab.BaseURL))
		if err != nil {
			return nil, errors.Wrap(err, "Failed to create gitlab client")
		}
		return &gitlab_client.ClientGitlab{
			ClientBase: &base.ClientBase{
				Config: conf,
				Logger: logger.Named("gitlab"),
			},
			Gitlab: client,
		}, nil
	case config.GiteaMode:
		client, err := gitea.NewClient(conf.Platform.Gitea.BaseURL, gitea.SetToken(conf.Platform.Gitea.Token), gitea.SetGiteaVersion(""))
		if err != nil {
			return nil, errors.Wrap(err, "Failed to create gitea client")
		}
		return &gitea_client.ClientGitea{
			ClientBase: &base.ClientBase{
				Config: conf,
				Logger: logger.Named("gitea"),
			},
			Gitea: client,
		}, nil
	case config.NoneMode, "":
		return base.NewNoopCommenter(logger), nil
	default:
		return nil, errors.Wrap(errors.Errorf("Unknown platform mode: %s", conf.Platform.Mode), fmt.Sprintf("Failed to create client for platform %s", conf.Platform.Mode))
	}
}
