package models

import "time"

const UnknownExercise = "unknown"

// Submission identifies one graded attempt of a submitter repository.
type Submission struct {
	Exercise   string
	Submitter  string
	Org        string
	Repo       string
	CommitHash string
	Groups     []string
}

// AuditEntry is one structured commit of the shared repository history.
type AuditEntry struct {
	Submission

	Hash       string
	AuthoredAt time.Time
}
