package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pushback/internal/pushback"
	"pushback/internal/rsync"
)

// LocalRemote is a filesystem-based backup target: a local or mounted
// directory that rsync copies into directly.
//
//	<base>/
//	  <name>_<fingerprint>[<bucket>]/   (one directory per project)
type LocalRemote struct {
	name  string
	base  string
	rsync *rsync.Runner
}

// NewLocalRemote creates a target rooted at base. The base is not created;
// a missing base is reported by BaseExists like any other target.
func NewLocalRemote(name, base string, runner *rsync.Runner) (*LocalRemote, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolving local base %s: %w", base, err)
	}
	if runner == nil {
		runner = &rsync.Runner{}
	}
	return &LocalRemote{name: name, base: abs, rsync: runner}, nil
}

func (r *LocalRemote) Name() string { return r.name }

func (r *LocalRemote) Describe() string { return "local -> " + r.base }

func (r *LocalRemote) Location(dir string) string { return filepath.Join(r.base, dir) }

func (r *LocalRemote) MissingBaseHint() string {
	return fmt.Sprintf(`mkdir -p "%s"`, r.base)
}

func (r *LocalRemote) BaseExists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(r.base)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking local base: %w", err)
	}
	return info.IsDir(), nil
}

// ListSiblings returns the sorted directory names under the base that start
// with prefix.
func (r *LocalRemote) ListSiblings(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.base)
	if err != nil {
		return nil, fmt.Errorf("listing local base: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Transfer runs rsync from the project root into dir under the base.
func (r *LocalRemote) Transfer(ctx context.Context, req pushback.TransferRequest) error {
	return r.rsync.Run(ctx, r.invocation(req))
}

// Command returns the rsync command line Transfer would run, for display.
func (r *LocalRemote) Command(req pushback.TransferRequest) []string {
	return r.rsync.Command(r.invocation(req))
}

func (r *LocalRemote) invocation(req pushback.TransferRequest) rsync.Invocation {
	return rsync.Invocation{
		Source:           req.LocalRoot,
		Destination:      r.Location(req.RemoteDir),
		Filters:          req.Filters,
		DeleteExtraneous: req.DeleteExtraneous,
		DryRun:           req.DryRun,
		Stats:            r.rsync.Stats,
		Extra:            r.rsync.Extra,
	}
}

var _ pushback.Remote = (*LocalRemote)(nil)
