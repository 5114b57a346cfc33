// Package gittest creates throwaway git remotes for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

type Remote struct {
	BaseURL string
	Org     string
	Name    string
	Branch  string
}

// NewRemote creates a bare repository at <BaseURL>/<org>/<name>.git holding
// one commit on branch. The test is skipped when git is not installed.
func NewRemote(t testing.TB, org, name, branch string) *Remote {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	r := &Remote{BaseURL: t.TempDir(), Org: org, Name: name, Branch: branch}
	Git(t, "", "init", "--quiet", "--bare", r.Path())

	seed := t.TempDir()
	Git(t, seed, "init", "--quiet")
	Git(t, seed, "checkout", "--quiet", "-b", branch)
	WriteFile(t, filepath.Join(seed, "README.md"), "# "+name+"\n")
	Git(t, seed, "add", "README.md")
	Git(t, seed, "commit", "--quiet", "-m", "Initial commit")
	Git(t, seed, "push", "--quiet", r.Path(), "HEAD:refs/heads/"+branch)
	Git(t, "", "--git-dir", r.Path(), "symbolic-ref", "HEAD", "refs/heads/"+branch)
	return r
}

func (r *Remote) Path() string {
	return filepath.Join(r.BaseURL, r.Org, r.Name+".git")
}

// Clone returns a fresh working copy checked out at the branch.
func (r *Remote) Clone(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	Git(t, "", "clone", "--quiet", "--branch", r.Branch, r.Path(), dir)
	return dir
}

// Commit pushes a commit writing files, as another writer would.
func (r *Remote) Commit(t testing.TB, message string, files map[string]string) {
	t.Helper()
	dir := r.Clone(t)
	for path, content := range files {
		WriteFile(t, filepath.Join(dir, path), content)
		Git(t, dir, "add", "--", path)
	}
	Git(t, dir, "commit", "--quiet", "--allow-empty", "-m", message)
	Git(t, dir, "push", "--quiet", "origin", "HEAD:refs/heads/"+r.Branch)
}

// Show returns the content of path at the tip of the branch.
func (r *Remote) Show(t testing.TB, path string) string {
	t.Helper()
	return Git(t, "", "--git-dir", r.Path(), "show", r.Branch+":"+path)
}

// Subjects lists commit subjects on the branch, newest first.
func (r *Remote) Subjects(t testing.TB) []string {
	t.Helper()
	out := Git(t, "", "--git-dir", r.Path(), "log", "--format=%s", r.Branch)
	return strings.Split(strings.TrimSpace(out), "\n")
}

func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=gittest",
		"GIT_AUTHOR_EMAIL=gittest@localhost",
		"GIT_COMMITTER_NAME=gittest",
		"GIT_COMMITTER_EMAIL=gittest@localhost",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
