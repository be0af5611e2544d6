package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pushback/internal/config"
	"pushback/internal/database"
	"pushback/internal/fs"
	"pushback/internal/model"
	"pushback/internal/prompt"
	"pushback/internal/pushback"
	"pushback/internal/remote"
	"pushback/internal/rsync"
)

const bytesPerMB = 1024 * 1024

// RemoteFactory creates the Remote for one configured target.
type RemoteFactory func(ctx context.Context, cfg config.RemoteConfig, opts remote.Options) (pushback.Remote, error)

// Options configures how a PushbackApp talks to the outside world. Nil
// fields get the process defaults.
type Options struct {
	Verbose   bool
	Out       io.Writer
	Err       io.Writer
	Prompter  *prompt.Prompter
	NewRemote RemoteFactory
	Clock     pushback.Clock
	Getenv    func(string) string
}

// PushbackApp is the application layer between the CLI and the pushback
// Service. It constructs all dependencies from config, exposes high-level
// operations that accept raw string paths, and closes the history store and
// log file on Close.
type PushbackApp struct {
	cfg       *config.Config
	fsmgr     *fs.OSFilesystemManager
	history   database.HistoryStore
	service   *pushback.Service
	logger    pushback.Logger
	prompter  *prompt.Prompter
	newRemote RemoteFactory
	getenv    func(string) string
	runID     string
	verbose   bool
	out       io.Writer
	errOut    io.Writer
	logFile   *os.File
}

// NewPushbackApp creates a fully wired PushbackApp from the given config.
// The caller must call Close when done.
func NewPushbackApp(cfg *config.Config, opts Options) (*PushbackApp, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Prompter == nil {
		opts.Prompter = prompt.NewTerminal(opts.Out)
	}
	if opts.NewRemote == nil {
		opts.NewRemote = remote.NewRemoteFromConfig
	}
	if opts.Clock == nil {
		opts.Clock = pushback.RealClock{}
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	historyDB, err := fs.ExpandHome(cfg.Options.HistoryDB)
	if err != nil {
		return nil, err
	}
	logDir, err := fs.ExpandHome(cfg.Options.LogDir)
	if err != nil {
		return nil, err
	}

	history, err := database.NewHistoryFromConfig(historyDB)
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}

	runID := pushback.UUIDGenerator{}.New()
	logger, logFile, err := newLogger(logDir, runID, opts.Verbose, opts.Err)
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	fsmgr := fs.NewOSFilesystemManager()
	svc := pushback.NewService(fsmgr, history, adapter, opts.Clock, fixedID(runID))

	return &PushbackApp{
		cfg:       cfg,
		fsmgr:     fsmgr,
		history:   history,
		service:   svc,
		logger:    adapter,
		prompter:  opts.Prompter,
		newRemote: opts.NewRemote,
		getenv:    opts.Getenv,
		runID:     runID,
		verbose:   opts.Verbose,
		out:       opts.Out,
		errOut:    opts.Err,
		logFile:   logFile,
	}, nil
}

// fixedID hands the app's run ID to the service so log lines and history
// rows share it.
type fixedID string

func (f fixedID) New() string { return string(f) }

// RunID returns the ID of this invocation's run.
func (a *PushbackApp) RunID() string { return a.runID }

// Backup backs the project at rawPath up to the selected targets.
func (a *PushbackApp) Backup(ctx context.Context, rawPath string, opts BackupOptions) (*pushback.Summary, error) {
	spec, err := a.snapshotSpec(opts)
	if err != nil {
		return nil, err
	}
	selected, err := a.cfg.SelectRemotes(opts.Servers)
	if err != nil {
		return nil, err
	}
	extra, err := rsync.SplitExtra(opts.RsyncExtra)
	if err != nil {
		return nil, &config.ConfigError{Msg: err.Error()}
	}

	root, err := a.resolveProject(rawPath)
	if err != nil {
		return nil, err
	}
	identity := pushback.NewProjectIdentity(root.String())

	prompter := a.prompter.WithContext(ctx)
	set := a.patternSet(root)
	set, err = a.handleLargeFiles(ctx, root, set, opts, prompter)
	if err != nil {
		return nil, err
	}

	filters, err := fs.WriteFilterFiles("", set)
	if err != nil {
		return nil, fmt.Errorf("writing filter files: %w", err)
	}
	defer filters.Close()

	targets, closeTargets, err := a.buildTargets(ctx, selected, opts, extra)
	if err != nil {
		return nil, err
	}
	defer closeTargets()

	if a.verbose {
		fmt.Fprintf(a.out, "Project: %s\nRemote name: %s\n", identity.CanonicalPath, identity.BaseName())
		fmt.Fprintf(a.out, "Excludes: %s\n", strings.Join(set.DisplayExcludes(), " "))
		if includes := set.ExpandedIncludes(); len(includes) > 0 {
			fmt.Fprintf(a.out, "Includes: %s\n", strings.Join(includes, " "))
		}
	}

	return a.service.Backup(ctx, pushback.BackupRequest{
		Root:             root,
		Identity:         identity,
		Snapshot:         spec,
		Targets:          targets,
		Patterns:         set,
		Filters:          filters.Paths(),
		Collision:        opts.CollisionPolicy(prompter),
		DeleteExtraneous: a.cfg.Options.DeleteRemote,
		DryRun:           opts.DryRun,
		KeepGoing:        opts.ContinueOnFailure(),
	})
}

func (a *PushbackApp) snapshotSpec(opts BackupOptions) (pushback.SnapshotSpec, error) {
	modeName := a.cfg.Options.SnapshotMode
	if opts.SnapshotMode != "" {
		modeName = opts.SnapshotMode
	}
	hours := a.cfg.Options.SnapshotCustomHours
	if opts.SnapshotCustomHours != 0 {
		hours = opts.SnapshotCustomHours
	}

	mode, err := pushback.ParseSnapshotMode(modeName)
	if err != nil {
		return pushback.SnapshotSpec{}, &config.ConfigError{Msg: err.Error()}
	}
	spec := pushback.SnapshotSpec{Mode: mode, CustomHours: hours}
	if err := spec.Validate(); err != nil {
		return pushback.SnapshotSpec{}, &config.ConfigError{Msg: err.Error()}
	}
	return spec, nil
}

func (a *PushbackApp) resolveProject(rawPath string) (*pushback.Path, error) {
	if rawPath == "" {
		rawPath = "."
	}
	root, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if !root.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}
	return root, nil
}

// patternSet merges the built-in, global and project patterns for root.
// Unreadable ignore files are reported and contribute nothing.
func (a *PushbackApp) patternSet(root *pushback.Path) *pushback.PatternSet {
	var global []string
	if a.cfg.Options.GlobalIgnore != "" {
		path, err := fs.ExpandHome(a.cfg.Options.GlobalIgnore)
		if err == nil {
			global, err = fs.LoadPatterns(path)
		}
		if err != nil {
			a.warn("could not read global ignore %s: %v", a.cfg.Options.GlobalIgnore, err)
		}
	}

	excludes, includes, err := fs.LoadBackupIgnore(root.String())
	if err != nil {
		a.warn("could not read %s: %v", fs.BackupIgnoreName, err)
	}

	var all []string
	all = append(all, global...)
	all = append(all, excludes...)
	all = append(all, includes...)
	for _, p := range pushback.InvalidPatterns(all) {
		a.warn("ignoring invalid pattern %q", p)
	}

	return pushback.BuildPatternSet(pushback.PatternSources{
		Builtins:        pushback.DefaultExcludes,
		Global:          global,
		ProjectExcludes: excludes,
		ProjectIncludes: includes,
	})
}

// handleLargeFiles lists files at or above large_file_mb, asks what to do
// with them and returns set extended with the ignored ones. Nothing is
// scanned, asked or written once ctx is done.
func (a *PushbackApp) handleLargeFiles(ctx context.Context, root *pushback.Path, set *pushback.PatternSet, opts BackupOptions, decider pushback.LargeFileDecider) (*pushback.PatternSet, error) {
	mb := a.cfg.Options.LargeFileMB
	if mb <= 0 {
		return set, nil
	}
	if err := interrupted(ctx); err != nil {
		return nil, err
	}
	files, err := a.service.FindLargeFiles(root, set, int64(mb)*bytesPerMB)
	if err != nil {
		return nil, fmt.Errorf("scanning for large files: %w", err)
	}
	if len(files) == 0 {
		return set, nil
	}

	fmt.Fprintf(a.out, "Found %d large file(s) (>= %d MB):\n", len(files), mb)
	for i, f := range files {
		fmt.Fprintf(a.out, "  %2d. %s  (%s)\n", i+1, f.RelPath, prompt.FormatSize(f.Size))
	}
	fmt.Fprintln(a.out)
	if !a.prompter.Interactive() && !opts.ForceAll {
		fmt.Fprintln(a.out, "No terminal to ask; keeping all large files. (Tip: use --force-all)")
	}

	if err := interrupted(ctx); err != nil {
		return nil, err
	}
	decision, err := pushback.DecideLargeFiles(files, opts.LargeFileOptions(), decider)
	if err != nil {
		return nil, err
	}
	if err := interrupted(ctx); err != nil {
		return nil, err
	}
	patterns := decision.Patterns()
	if len(patterns) == 0 {
		return set, nil
	}

	if decision.Persist {
		path, err := fs.AppendBackupIgnore(root.String(), patterns)
		if err != nil {
			a.warn("could not update %s: %v", fs.BackupIgnoreName, err)
		} else {
			fmt.Fprintf(a.out, "Updated %s\n", path)
		}
	}
	a.logger.Info("large files ignored", "count", len(patterns), "persisted", decision.Persist)
	return set.WithAdHocExcludes(patterns), nil
}

func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", pushback.ErrInterrupted, err)
	}
	return nil
}

func (a *PushbackApp) buildTargets(ctx context.Context, selected []config.RemoteConfig, opts BackupOptions, extra []string) ([]pushback.Remote, func(), error) {
	runner := &rsync.Runner{
		Stdout: a.out,
		Stderr: a.errOut,
		Logger: a.logger,
		Stats:  opts.Stats,
		Extra:  extra,
	}

	var targets []pushback.Remote
	closeAll := func() {
		for _, t := range targets {
			if c, ok := t.(io.Closer); ok {
				c.Close()
			}
		}
	}

	for _, rc := range selected {
		r, err := a.newRemote(ctx, rc, remote.Options{
			Multiplex: !opts.NoMultiplex,
			Rsync:     runner,
			Logger:    a.logger,
			Out:       a.out,
			Getenv:    a.getenv,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("creating remote %s: %w", rc.Name, err)
		}
		if a.verbose {
			r = &announcingRemote{Remote: r, out: a.out, multiplex: !opts.NoMultiplex}
		}
		targets = append(targets, r)
	}
	return targets, closeAll, nil
}

// announcingRemote prints each target and the transfer command before it runs.
type announcingRemote struct {
	pushback.Remote
	out       io.Writer
	multiplex bool
}

type commander interface {
	Command(req pushback.TransferRequest) []string
}

func (r *announcingRemote) Transfer(ctx context.Context, req pushback.TransferRequest) error {
	fmt.Fprintf(r.out, "=== Server: %s ===\n%s\nTarget: %s\n", r.Name(), r.Describe(), r.Location(req.RemoteDir))
	if c, ok := r.Remote.(commander); ok {
		fmt.Fprintf(r.out, "Running rsync for %s:\n  %s\n", r.Name(), strings.Join(c.Command(req), " "))
		fmt.Fprintf(r.out, "SSH multiplexing: %s\n", map[bool]string{true: "enabled", false: "disabled"}[r.multiplex])
	}
	return r.Remote.Transfer(ctx, req)
}

func (r *announcingRemote) Close() error {
	if c, ok := r.Remote.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Servers returns the configured remotes in config order.
func (a *PushbackApp) Servers() []config.RemoteConfig {
	return a.cfg.Remotes
}

// RemoteListing is the backups found on one remote.
type RemoteListing struct {
	Name     string
	Describe string
	Entries  []string
	Err      error
	Hint     string
}

// ListRemote lists backup directories on the selected remotes. With a
// filter only entries named "<filter>_..." are listed; otherwise every entry
// that looks like a backup (contains "_").
func (a *PushbackApp) ListRemote(ctx context.Context, servers, filter string) ([]RemoteListing, error) {
	selected, err := a.cfg.SelectRemotes(servers)
	if err != nil {
		return nil, err
	}

	var listings []RemoteListing
	for _, rc := range selected {
		r, err := a.newRemote(ctx, rc, remote.Options{Multiplex: true, Logger: a.logger, Getenv: a.getenv})
		if err != nil {
			listings = append(listings, RemoteListing{Name: rc.Name, Err: err})
			continue
		}
		listings = append(listings, a.listOne(ctx, r, filter))
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}
	}
	return listings, nil
}

func (a *PushbackApp) listOne(ctx context.Context, r pushback.Remote, filter string) RemoteListing {
	listing := RemoteListing{Name: r.Name(), Describe: r.Describe()}

	exists, err := r.BaseExists(ctx)
	if err != nil {
		listing.Err = err
		return listing
	}
	if !exists {
		listing.Err = pushback.ErrRemoteBaseMissing
		listing.Hint = r.MissingBaseHint()
		return listing
	}

	prefix := ""
	if filter != "" {
		prefix = filter + "_"
	}
	names, err := r.ListSiblings(ctx, prefix)
	if err != nil {
		listing.Err = err
		return listing
	}
	for _, n := range names {
		if strings.Contains(n, "_") {
			listing.Entries = append(listing.Entries, n)
		}
	}
	return listing
}

// CheckResult explains the filter decision for one path.
type CheckResult struct {
	Path     string
	IsDir    bool
	Decision pushback.Decision
}

// Check evaluates paths against the pattern set of the project at rawRoot.
// Relative paths are taken from the project root. A path that does not
// exist is treated as a directory when it ends in "/".
func (a *PushbackApp) Check(rawRoot string, paths []string) ([]CheckResult, error) {
	root, err := a.resolveProject(rawRoot)
	if err != nil {
		return nil, err
	}
	set := a.patternSet(root)

	results := make([]CheckResult, 0, len(paths))
	for _, p := range paths {
		rel := p
		if filepath.IsAbs(p) {
			if rel, err = filepath.Rel(root.String(), p); err != nil {
				return nil, fmt.Errorf("relating %s to %s: %w", p, root, err)
			}
		}
		rel = filepath.ToSlash(filepath.Clean(rel))
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return nil, fmt.Errorf("path %s is outside the project %s", p, root)
		}

		isDir := strings.HasSuffix(p, "/")
		if info, err := os.Lstat(filepath.Join(root.String(), rel)); err == nil {
			isDir = info.IsDir()
		}
		results = append(results, CheckResult{Path: rel, IsDir: isDir, Decision: set.Decide(rel, isDir)})
	}
	return results, nil
}

// HistoryEntry is one recorded run with its per-target outcomes.
type HistoryEntry struct {
	Run     *model.Run
	Targets []*model.TargetRecord
}

// History returns the most recent runs, newest first.
func (a *PushbackApp) History(limit int) ([]HistoryEntry, error) {
	runs, err := a.history.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	entries := make([]HistoryEntry, 0, len(runs))
	for _, run := range runs {
		targets, err := a.history.ListTargets(run.ID)
		if err != nil {
			return nil, fmt.Errorf("listing targets of run %s: %w", run.ID, err)
		}
		entries = append(entries, HistoryEntry{Run: run, Targets: targets})
	}
	return entries, nil
}

func (a *PushbackApp) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(a.errOut, "Warning: "+msg)
	a.logger.Warn(msg)
}

// Close closes the history store and the log file.
func (a *PushbackApp) Close() error {
	var errs []error
	if err := a.history.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing history: %w", err))
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
