package model

import (
	"database/sql"
	"time"
)

// Run is one invocation of a backup against one or more targets.
type Run struct {
	ID           string // UUID
	ProjectPath  string // Canonical local path
	ProjectName  string
	Fingerprint  string
	SnapshotMode string
	TimeSuffix   string
	DryRun       bool
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Status       string // "running" until finished, then see pushback.Summary.Status
}

// TargetRecord is the outcome of a run against a single target.
type TargetRecord struct {
	ID         int64
	RunID      string // Foreign key to Run
	Target     string // Configured remote name
	RemoteDir  string // Resolved directory name, empty if resolution failed
	Resolution string // How RemoteDir was chosen (exact, bucket, minted, ...)
	Outcome    string // succeeded, failed, aborted, interrupted, skipped
	Message    string // Error text for non-success outcomes
	FinishedAt time.Time
}
