// Package rsync builds and runs the rsync invocation for one backup target.
package rsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"pushback/internal/pushback"
)

// exitInterrupted is rsync's "received SIGUSR1 or SIGINT" status.
const exitInterrupted = 20

// Invocation describes one rsync run.
type Invocation struct {
	// Source is the local project root. A trailing slash is added.
	Source string
	// Destination is "user@host:dir" or a local directory. A trailing slash is added.
	Destination string
	// RemoteShell is the -e argument, e.g. "ssh -p 22". Empty for local destinations.
	RemoteShell string

	Filters          pushback.FilterPaths
	DeleteExtraneous bool
	DryRun           bool
	Stats            bool
	Extra            []string
}

// Args returns the rsync arguments, without the program name, for inv.
func Args(inv Invocation) []string {
	args := []string{"-azP"}
	if inv.DeleteExtraneous {
		args = append(args, "--delete")
	}
	args = append(args, "--safe-links", "--prune-empty-dirs")
	if inv.RemoteShell != "" {
		args = append(args, "-e", inv.RemoteShell)
	}
	if inv.Filters.IncludeFile != "" {
		args = append(args, "--include-from="+inv.Filters.IncludeFile)
	}
	if inv.Filters.ExcludeFile != "" {
		args = append(args, "--exclude-from="+inv.Filters.ExcludeFile)
	}
	if inv.DryRun {
		args = append(args, "--dry-run", "--itemize-changes")
	}
	if inv.Stats {
		args = append(args, "--stats")
	}
	args = append(args, inv.Extra...)
	args = append(args, withSlash(inv.Source), withSlash(inv.Destination))
	return args
}

func withSlash(p string) string {
	return strings.TrimRight(p, "/") + "/"
}

// SplitExtra splits user supplied rsync flags with shell quoting rules.
// Tokens that would replace the remote shell (-e, -eCMD) are dropped.
func SplitExtra(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	tokens, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("parsing rsync-extra options: %w", err)
	}
	kept := tokens[:0]
	for _, t := range tokens {
		if strings.HasPrefix(t, "-e") {
			continue
		}
		kept = append(kept, t)
	}
	return kept, nil
}

// SSHOptions returns the ssh options for port. With multiplex set, connections
// are shared through a control socket under ~/.ssh that lingers for 60s.
func SSHOptions(port int, multiplex bool, identityFile string) []string {
	opts := []string{"-p", strconv.Itoa(port)}
	if identityFile != "" {
		opts = append(opts, "-i", identityFile)
	}
	if !multiplex {
		return opts
	}
	controlPath := "~/.ssh/pushback-%r@%h-%p"
	if home, err := os.UserHomeDir(); err == nil {
		controlPath = filepath.Join(home, ".ssh", "pushback-%r@%h-%p")
	}
	return append(opts,
		"-o", "ControlMaster=auto",
		"-o", "ControlPath="+controlPath,
		"-o", "ControlPersist=60",
	)
}

// RemoteShell joins ssh options into the value passed to rsync -e.
func RemoteShell(opts []string) string {
	return strings.Join(append([]string{"ssh"}, opts...), " ")
}

// Runner executes rsync. The zero value runs "rsync" from PATH with output
// discarded. Stats and Extra are run-wide settings that remotes copy into
// each Invocation.
type Runner struct {
	Binary string
	Stdout io.Writer
	Stderr io.Writer
	Logger pushback.Logger

	Stats bool
	Extra []string
}

// Command returns the command line Run would execute, for display.
func (r *Runner) Command(inv Invocation) []string {
	return append([]string{r.binary()}, Args(inv)...)
}

func (r *Runner) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "rsync"
}

// Run executes rsync for inv. A cancelled ctx or rsync's interrupt status
// yields an error wrapping pushback.ErrInterrupted.
func (r *Runner) Run(ctx context.Context, inv Invocation) error {
	args := Args(inv)
	if r.Logger != nil {
		r.Logger.Debug("running rsync", "args", strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", pushback.ErrInterrupted, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == exitInterrupted {
			return fmt.Errorf("%w: rsync exited with status %d", pushback.ErrInterrupted, exitInterrupted)
		}
		return fmt.Errorf("rsync exited with status %d", exitErr.ExitCode())
	}
	return fmt.Errorf("failed to run rsync: %w", err)
}
