package app

import "pushback/internal/pushback"

// BackupOptions are the per-invocation switches of a backup. Zero values
// mean "use the config file".
type BackupOptions struct {
	Servers             string // comma separated remote names; empty selects the defaults
	DryRun              bool
	Stats               bool
	Verbose             bool
	NoMultiplex         bool
	RsyncExtra          string
	SnapshotMode        string
	SnapshotCustomHours int

	ForceAll             bool
	ForceCollisionNew    bool
	ForceCollisionUpdate bool
	ForceBackupIgnore    bool
	KeepGoing            bool
}

// CollisionPolicy builds the collision policy. ForceAll sets both force
// flags, so a collision creates a new directory.
func (o BackupOptions) CollisionPolicy(decider pushback.CollisionDecider) pushback.CollisionPolicy {
	return pushback.CollisionPolicy{
		ForceNew:    o.ForceAll || o.ForceCollisionNew,
		ForceUpdate: o.ForceAll || o.ForceCollisionUpdate,
		Decider:     decider,
	}
}

// LargeFileOptions maps the force flags onto the large-file decision.
// ForceAll keeps every large file without asking.
func (o BackupOptions) LargeFileOptions() pushback.LargeFileOptions {
	return pushback.LargeFileOptions{
		KeepAll: o.ForceAll,
		Persist: o.ForceAll || o.ForceBackupIgnore,
	}
}

// ContinueOnFailure reports whether every target is attempted after a failure.
func (o BackupOptions) ContinueOnFailure() bool {
	return o.KeepGoing || o.ForceAll
}
