package gitsync

import (
	"errors"
	"strings"
)

var (
	// ErrBranchNotFound is a configuration error and is never retried.
	ErrBranchNotFound = errors.New("branch not found")
	// ErrPushRejected means another writer pushed first.
	ErrPushRejected = errors.New("push rejected")
	// ErrTransient covers network failures worth retrying.
	ErrTransient = errors.New("transient git failure")
)

var transientMarkers = []string{
	"could not resolve host",
	"connection refused",
	"connection reset",
	"connection timed out",
	"operation timed out",
	"failed to connect",
	"couldn't connect to server",
	"network is unreachable",
	"temporary failure in name resolution",
	"the remote end hung up unexpectedly",
	"early eof",
	"rpc failed",
	"cannot lock ref",
	"unable to update local ref",
}

var branchMarkers = []string{
	"couldn't find remote ref",
	"unknown revision",
	"not a valid object name",
	"did not match any file(s) known to git",
	"invalid reference",
	"needed a single revision",
}

var rejectMarkers = []string{
	"[rejected]",
	"[remote rejected]",
	"non-fast-forward",
	"fetch first",
	"stale info",
	"updates were rejected",
}

type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string {
	return c.kind.Error() + ": " + c.err.Error()
}

func (c *classified) Unwrap() error {
	return c.err
}

func (c *classified) Is(target error) bool {
	return target == c.kind
}

func containsAny(haystack string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}

func stderrOf(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return strings.ToLower(cmdErr.Stderr)
	}
	return strings.ToLower(err.Error())
}

// classify tags a git failure with the matching error kind, if any.
func classify(err error, push bool) error {
	if err == nil {
		return nil
	}
	stderr := stderrOf(err)
	switch {
	case push && containsAny(stderr, rejectMarkers):
		return &classified{kind: ErrPushRejected, err: err}
	case containsAny(stderr, transientMarkers):
		return &classified{kind: ErrTransient, err: err}
	case containsAny(stderr, branchMarkers):
		return &classified{kind: ErrBranchNotFound, err: err}
	default:
		return err
	}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
