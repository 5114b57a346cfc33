package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bigredeye/scoreledger/pkg/conf"
)

const (
	GiteaMode  = "gitea"
	GitlabMode = "gitlab"
	NoneMode   = "none"
)

type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Ceiling    time.Duration
}

type Config struct {
	// Tool prefixes every audit commit message.
	Tool string

	Repos struct {
		Dir     string
		BaseURL string
		Org     string
		// Shared is the name of the repository holding the scoreboard and failed table.
		Shared    string
		Branch    string
		RemoteRef string
	}

	Files struct {
		Scoreboard  string
		FailedTable string
	}

	Lock struct {
		Path       string
		Timeout    time.Duration
		RetryDelay time.Duration
	}

	Sync struct {
		RemoveStaleLocks bool
		StaleLockAge     time.Duration
		Backoff          Backoff
	}

	Push struct {
		Backoff Backoff
	}

	Git struct {
		Binary    string
		UserName  string
		UserEmail string
	}

	Platform struct {
		Mode  string
		Gitea struct {
			BaseURL string
			Token   string
		}
		GitLab struct {
			BaseURL string
			Token   string
		}
	}

	Notify struct {
		Mattermost struct {
			WebhookURL string
			Channel    string
			Username   string
		}
		Telegram struct {
			BotToken string
			ChatID   int64
		}
	}

	Log struct {
		Level      string
		Production bool
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"tool":                       "scoreledger",
		"repos.branch":               "grading",
		"files.scoreboard":           "scoreboard.csv",
		"files.failedtable":          "failed-table.md",
		"lock.path":                  ".git/scoreledger.lock",
		"lock.timeout":               30 * time.Second,
		"lock.retrydelay":            100 * time.Millisecond,
		"sync.removestalelocks":      true,
		"sync.stalelockage":          10 * time.Minute,
		"sync.backoff.initial":       500 * time.Millisecond,
		"sync.backoff.multiplier":    2.0,
		"sync.backoff.ceiling":       64 * time.Second,
		"push.backoff.initial":       time.Second,
		"push.backoff.multiplier":    2.0,
		"push.backoff.ceiling":       64 * time.Second,
		"git.binary":                 "git",
		"git.username":               "scoreledger",
		"git.useremail":              "scoreledger@localhost",
		"platform.mode":              NoneMode,
		"notify.mattermost.username": "scoreledger",
		"log.level":                  "info",
		"log.maxsizemb":              50,
		"log.maxbackups":             5,
		"log.maxagedays":             30,
	}
}

func ParseConfig(path string) (*Config, error) {
	config := &Config{}
	if err := conf.ParseConfig(config, conf.EnvPrefix("SCORELEDGER"), conf.File(path), conf.Defaults(defaults())); err != nil {
		return nil, errors.Wrap(err, "Failed to parse config")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid config")
	}
	return config, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.Repos.Dir == "" {
		missing = append(missing, "repos.dir")
	}
	if c.Repos.BaseURL == "" {
		missing = append(missing, "repos.baseurl")
	}
	if c.Repos.Org == "" {
		missing = append(missing, "repos.org")
	}
	if c.Repos.Shared == "" {
		missing = append(missing, "repos.shared")
	}
	if c.Repos.Branch == "" {
		missing = append(missing, "repos.branch")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	if !strings.HasSuffix(c.Files.Scoreboard, ".csv") {
		return errors.Errorf("scoreboard file should be a .csv file, got %q", c.Files.Scoreboard)
	}
	if !strings.HasSuffix(c.Files.FailedTable, ".md") {
		return errors.Errorf("failed table file should be a .md file, got %q", c.Files.FailedTable)
	}

	switch c.Platform.Mode {
	case GiteaMode, GitlabMode, NoneMode:
	default:
		return errors.Errorf("unknown platform mode: %s", c.Platform.Mode)
	}
	return nil
}

// RemoteRef defaults to the remote tracking ref of the target branch.
func (c *Config) RemoteRef() string {
	if c.Repos.RemoteRef != "" {
		return c.Repos.RemoteRef
	}
	return "origin/" + c.Repos.Branch
}

func (c *Config) RepoURL(name string) string {
	return fmt.Sprintf("%s/%s/%s.git", strings.TrimSuffix(c.Repos.BaseURL, "/"), c.Repos.Org, name)
}

func (c *Config) RepoLink(name string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.Repos.BaseURL, "/"), c.Repos.Org, name)
}
