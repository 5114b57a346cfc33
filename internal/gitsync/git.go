package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Runner executes git in a directory and returns its stdout.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

type CommandError struct {
	Args     []string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

type Identity struct {
	Name  string
	Email string
}

type execRunner struct {
	binary   string
	identity Identity
	logger   *zap.Logger
}

func NewRunner(binary string, identity Identity, logger *zap.Logger) Runner {
	if binary == "" {
		binary = "git"
	}
	return &execRunner{binary: binary, identity: identity, logger: logger.Named("git")}
}

func (r *execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	r.logger.Debug("Running git", zap.Strings("args", args), zap.String("dir", dir))

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"LC_ALL=C",
		"GIT_AUTHOR_NAME="+r.identity.Name,
		"GIT_AUTHOR_EMAIL="+r.identity.Email,
		"GIT_COMMITTER_NAME="+r.identity.Name,
		"GIT_COMMITTER_EMAIL="+r.identity.Email,
	)

	stdout := bytes.Buffer{}
	stderr := bytes.Buffer{}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cmdErr := &CommandError{Args: args, Stderr: stderr.String(), ExitCode: -1, Err: err}
		if exitErr, ok := err.(*exec.ExitError); ok {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		r.logger.Debug("Git failed", zap.Strings("args", args), zap.Error(cmdErr))
		return stdout.String(), cmdErr
	}
	return stdout.String(), nil
}
