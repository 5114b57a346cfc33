package lf

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldRunID      = "run_id"
	FieldSubmitter  = "submitter"
	FieldExercise   = "exercise"
	FieldRepo       = "repo"
	FieldBranch     = "branch"
	FieldCommitHash = "commit_hash"
	FieldAttempt    = "attempt"
	FieldBackoff    = "backoff"
	FieldLockPath   = "lock_path"
	FieldFile       = "file"
	FieldGroup      = "group"
)

func RunID(id string) zap.Field {
	return zap.String(FieldRunID, id)
}

func Submitter(login string) zap.Field {
	return zap.String(FieldSubmitter, login)
}

func Exercise(name string) zap.Field {
	return zap.String(FieldExercise, name)
}

func Repo(name string) zap.Field {
	return zap.String(FieldRepo, name)
}

func Branch(name string) zap.Field {
	return zap.String(FieldBranch, name)
}

func CommitHash(hash string) zap.Field {
	return zap.String(FieldCommitHash, hash)
}

func Attempt(n int) zap.Field {
	return zap.Int(FieldAttempt, n)
}

func Backoff(d time.Duration) zap.Field {
	return zap.Duration(FieldBackoff, d)
}

func LockPath(path string) zap.Field {
	return zap.String(FieldLockPath, path)
}

func File(path string) zap.Field {
	return zap.String(FieldFile, path)
}

func Group(name string) zap.Field {
	return zap.String(FieldGroup, name)
}
