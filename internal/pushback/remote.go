package pushback

import "context"

// FilterPaths are the on-disk pattern files handed to the transfer tool.
// IncludeFile is empty when the set has no includes.
type FilterPaths struct {
	ExcludeFile string
	IncludeFile string
}

// TransferRequest describes one transfer of the local project to a remote
// directory. Patterns is the same set the filter files were rendered from,
// for backends that filter in-process.
type TransferRequest struct {
	LocalRoot        string
	RemoteDir        string
	Patterns         *PatternSet
	Filters          FilterPaths
	DeleteExtraneous bool
	DryRun           bool
}

// Remote is one configured backup target. Implementations live in
// internal/remote and convert every I/O failure into a returned error.
type Remote interface {
	// Name is the configured target name.
	Name() string

	// Describe returns a one-line human description, e.g. "me@host:22 -> ~/pushback".
	Describe() string

	// Location returns the printable location of dir under the base.
	Location(dir string) string

	// BaseExists reports whether the base directory exists on the remote.
	BaseExists(ctx context.Context) (bool, error)

	// MissingBaseHint tells the operator how to create a missing base.
	MissingBaseHint() string

	// ListSiblings returns the names of directories directly under the base
	// that start with prefix. An empty prefix lists everything.
	ListSiblings(ctx context.Context, prefix string) ([]string, error)

	// Transfer syncs the local root into dir under the base. Cancelling ctx
	// stops the transfer and yields an error wrapping ErrInterrupted.
	Transfer(ctx context.Context, req TransferRequest) error
}
