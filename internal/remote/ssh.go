package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"pushback/internal/pushback"
	"pushback/internal/rsync"
)

// Shell runs a script on a remote host and returns its standard output.
type Shell interface {
	Run(ctx context.Context, script string) (string, error)
}

// SSHOptions identifies an ssh target.
type SSHOptions struct {
	Name         string
	User         string
	Host         string
	Port         int
	Base         string
	IdentityFile string
	Multiplex    bool
}

// SSHRemote is a backup target reached over ssh. Existence checks and
// listings go through Shell; transfers always run rsync over the ssh binary.
type SSHRemote struct {
	opts   SSHOptions
	shell  Shell
	rsync  *rsync.Runner
	logger pushback.Logger
}

// NewSSHRemote creates an ssh target that runs remote scripts through shell.
func NewSSHRemote(opts SSHOptions, shell Shell, runner *rsync.Runner, logger pushback.Logger) *SSHRemote {
	if runner == nil {
		runner = &rsync.Runner{}
	}
	if logger == nil {
		logger = pushback.NewNopLogger()
	}
	return &SSHRemote{opts: opts, shell: shell, rsync: runner, logger: logger}
}

func (r *SSHRemote) Name() string { return r.opts.Name }

func (r *SSHRemote) Describe() string {
	return fmt.Sprintf("%s@%s:%d -> %s", r.opts.User, r.opts.Host, r.opts.Port, r.opts.Base)
}

func (r *SSHRemote) Location(dir string) string {
	return fmt.Sprintf("%s@%s:%s", r.opts.User, r.opts.Host, joinBase(r.opts.Base, dir))
}

func (r *SSHRemote) MissingBaseHint() string {
	return fmt.Sprintf(`ssh -p %d %s@%s "mkdir -p %s"`, r.opts.Port, r.opts.User, r.opts.Host, r.opts.Base)
}

// BaseExists runs a test -d on the remote.
func (r *SSHRemote) BaseExists(ctx context.Context) (bool, error) {
	out, err := r.shell.Run(ctx, testDirScript(r.opts.Base))
	if err != nil {
		return false, fmt.Errorf("checking remote base %s: %w", r.opts.Base, err)
	}
	return strings.Contains(out, "OK"), nil
}

// ListSiblings lists directories under the base starting with prefix.
func (r *SSHRemote) ListSiblings(ctx context.Context, prefix string) ([]string, error) {
	out, err := r.shell.Run(ctx, listScript(r.opts.Base, prefix))
	if err != nil {
		return nil, fmt.Errorf("listing remote base %s: %w", r.opts.Base, err)
	}
	names := hasPrefixAll(parseListing(out), prefix)
	sort.Strings(names)
	r.logger.Debug("listed remote siblings", "target", r.opts.Name, "prefix", prefix, "count", len(names))
	return names, nil
}

// Transfer runs rsync into dir under the base.
func (r *SSHRemote) Transfer(ctx context.Context, req pushback.TransferRequest) error {
	return r.rsync.Run(ctx, r.invocation(req))
}

// Command returns the rsync command line Transfer would run, for display.
func (r *SSHRemote) Command(req pushback.TransferRequest) []string {
	return r.rsync.Command(r.invocation(req))
}

func (r *SSHRemote) invocation(req pushback.TransferRequest) rsync.Invocation {
	return rsync.Invocation{
		Source:           req.LocalRoot,
		Destination:      r.Location(req.RemoteDir),
		RemoteShell:      rsync.RemoteShell(rsync.SSHOptions(r.opts.Port, r.opts.Multiplex, r.opts.IdentityFile)),
		Filters:          req.Filters,
		DeleteExtraneous: req.DeleteExtraneous,
		DryRun:           req.DryRun,
		Stats:            r.rsync.Stats,
		Extra:            r.rsync.Extra,
	}
}

// Close releases the shell's connection, if it holds one.
func (r *SSHRemote) Close() error {
	if c, ok := r.shell.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

var _ pushback.Remote = (*SSHRemote)(nil)
