package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pushback/internal/app"
	"pushback/internal/config"
	"pushback/internal/pushback"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Exit statuses.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	bold   = color.New(color.Bold)
)

// exitError carries the process exit status out of a RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitCode reports err on stderr and maps it to an exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			red.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	red.Fprintf(os.Stderr, "Error: %v\n", err)
	switch {
	case config.IsConfigError(err):
		return exitConfig
	case errors.Is(err, pushback.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFailure
	}
}

// loadConfig reads the config named by --config or the default location,
// warning about keys it does not know.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = defaults["config_path"]
	}

	cfg, unknown, err := config.Load(path, config.NewConfig(defaults["base_dir"], defaults["config_dir"]), os.Getenv)
	if err != nil {
		return nil, err
	}
	for _, key := range unknown {
		yellow.Fprintf(os.Stderr, "Warning: unknown config key %q in %s\n", key, path)
	}
	return cfg, nil
}

// newApp reads the config and creates a PushbackApp. The caller must defer a.Close().
func newApp(cmd *cobra.Command) (*app.PushbackApp, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	a, err := app.NewPushbackApp(cfg, app.Options{
		Verbose: verbose,
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "pushback [PROJECT_PATH]",
	Short: "Back up a project directory to one or more remotes",
	Long: `Back up a project directory with rsync to the configured remotes.

Each project gets a stable directory per remote, named after the folder and a
fingerprint of its absolute path. Snapshot modes add a time bucket suffix.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackup,
}

func backupOptions(cmd *cobra.Command) app.BackupOptions {
	f := cmd.Flags()
	var o app.BackupOptions
	o.Servers, _ = f.GetString("server")
	o.DryRun, _ = f.GetBool("dry-run")
	o.Stats, _ = f.GetBool("stats")
	o.Verbose, _ = f.GetBool("verbose")
	o.NoMultiplex, _ = f.GetBool("no-multiplex")
	o.RsyncExtra, _ = f.GetString("rsync-extra")
	o.SnapshotMode, _ = f.GetString("snapshot-mode")
	o.SnapshotCustomHours, _ = f.GetInt("snapshot-custom-hours")
	o.ForceAll, _ = f.GetBool("force-all")
	o.ForceCollisionNew, _ = f.GetBool("force-collision-new")
	o.ForceCollisionUpdate, _ = f.GetBool("force-collision-update")
	o.ForceBackupIgnore, _ = f.GetBool("force-backupignore")
	o.KeepGoing, _ = f.GetBool("keep-going")
	return o
}

// projectArg returns PROJECT_PATH. Without it the usage goes to stderr and
// the run ends with the config exit status.
func projectArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
		return "", &exitError{code: exitConfig, err: errors.New("PROJECT_PATH is required (use '.' for current dir)")}
	}
	return args[0], nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	opts := backupOptions(cmd)
	if cmd.Flags().Changed("snapshot-custom-hours") && opts.SnapshotCustomHours <= 0 {
		return &config.ConfigError{Msg: "--snapshot-custom-hours must be a positive integer"}
	}

	project, err := projectArg(cmd, args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	summary, err := a.Backup(cmd.Context(), project, opts)
	if err != nil {
		return err
	}

	for _, r := range summary.Results {
		switch r.Outcome {
		case pushback.OutcomeSucceeded:
			green.Fprintf(out, "Backup to %s completed: %s\n", r.Target, r.Location)
		case pushback.OutcomeSkipped:
			yellow.Fprintf(out, "Skipped %s\n", r.Target)
		default:
			red.Fprintf(out, "Backup to %s %s: %v\n", r.Target, r.Outcome, r.Err)
			if r.Hint != "" {
				fmt.Fprintf(out, "Create it with:\n  %s\n", r.Hint)
			}
		}
	}

	if len(summary.Results) > 1 {
		fmt.Fprintln(out)
		bold.Fprintln(out, "Summary:")
		if names := summary.Succeeded(); len(names) > 0 {
			green.Fprintf(out, "  Succeeded: %s\n", strings.Join(names, ", "))
		}
		if names := summary.Failed(); len(names) > 0 {
			red.Fprintf(out, "  Failed: %s\n", strings.Join(names, ", "))
		}
		if names := summary.Skipped(); len(names) > 0 {
			yellow.Fprintf(out, "  Skipped: %s\n", strings.Join(names, ", "))
		}
	}

	switch {
	case summary.OK():
		return nil
	case summary.Has(pushback.OutcomeInterrupted):
		yellow.Fprintln(out, "Interrupted.")
		return &exitError{code: exitInterrupted}
	default:
		return &exitError{code: exitFailure}
	}
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a template config and global ignore file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = defaults["config_path"]
		}
		force, _ := cmd.Flags().GetBool("force")

		cfg := config.NewConfig(defaults["base_dir"], defaults["config_dir"])
		res, err := config.Init(path, cfg, pushback.DefaultExcludes, force)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		green.Fprintf(out, "Configuration initialized at %s\n", res.ConfigPath)
		if res.GlobalIgnoreWritten {
			fmt.Fprintf(out, "Global ignore written to %s\n", res.GlobalIgnorePath)
		} else {
			fmt.Fprintf(out, "Keeping existing global ignore %s\n", res.GlobalIgnorePath)
		}
		fmt.Fprintln(out, "Edit the [[remote]] entries before the first backup.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m := &config.Manager{}
		return m.Write(cmd.OutOrStdout(), cfg)
	},
}

// servers command
var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List configured remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		bold.Fprintln(out, "Configured servers:")
		for _, r := range cfg.Remotes {
			mark := " "
			if r.Default {
				mark = "*"
			}
			fmt.Fprintf(out, " %s %-12s %s\n", mark, r.Name, describeRemote(r))
		}
		fmt.Fprintln(out, "\n* = default")
		return nil
	},
}

func describeRemote(r config.RemoteConfig) string {
	switch r.Type {
	case config.RemoteLocal:
		return fmt.Sprintf("local %s", r.Base)
	case config.RemoteS3:
		return fmt.Sprintf("s3://%s/%s", r.Bucket, strings.Trim(r.Base, "/"))
	default:
		return fmt.Sprintf("%s@%s:%d %s", r.User, r.Host, r.Port, r.Base)
	}
}

// remote command
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Inspect remote backups",
}

var remoteListCmd = &cobra.Command{
	Use:   "list [NAME]",
	Short: "List backups on the remotes, optionally only those of project NAME",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		servers, _ := cmd.Flags().GetString("server")
		filter := ""
		if len(args) > 0 {
			filter = args[0]
		}

		listings, err := a.ListRemote(cmd.Context(), servers, filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		code := exitOK
		for _, l := range listings {
			bold.Fprintf(out, "=== %s ===\n", l.Name)
			if l.Describe != "" {
				fmt.Fprintln(out, l.Describe)
			}
			if l.Err != nil {
				red.Fprintf(out, "Error: %v\n", l.Err)
				if l.Hint != "" {
					fmt.Fprintf(out, "Create it with:\n  %s\n", l.Hint)
				}
				if !errors.Is(l.Err, pushback.ErrRemoteBaseMissing) {
					code = exitFailure
				} else if code == exitOK {
					code = exitConfig
				}
				continue
			}
			if len(l.Entries) == 0 {
				fmt.Fprintln(out, "(no backups found)")
				continue
			}
			for _, e := range l.Entries {
				fmt.Fprintf(out, "  %s\n", e)
			}
		}
		if code != exitOK {
			return &exitError{code: code}
		}
		return nil
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check PATH...",
	Short: "Explain whether paths would be backed up",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		project, _ := cmd.Flags().GetString("project")
		results, err := a.Check(project, args)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, r := range results {
			path := r.Path
			if r.IsDir {
				path += "/"
			}
			switch r.Decision.Reason {
			case pushback.ReasonExcluded:
				red.Fprintf(out, "excluded    %s", path)
				fmt.Fprintf(out, "  (by %s)\n", r.Decision.Pattern)
			case pushback.ReasonReincluded:
				green.Fprintf(out, "reincluded  %s", path)
				fmt.Fprintf(out, "  (by %s)\n", r.Decision.Pattern)
			case pushback.ReasonTraverse:
				yellow.Fprintf(out, "traverse    %s", path)
				fmt.Fprintf(out, "  (for %s)\n", r.Decision.Pattern)
			default:
				green.Fprintf(out, "included    %s\n", path)
			}
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent backup runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.History(limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		fmt.Fprintf(out, "%-20s  %-12s  %-10s  %s\n", "STARTED", "STATUS", "DURATION", "PROJECT")
		for _, e := range entries {
			duration := "-"
			if e.Run.FinishedAt.Valid {
				duration = e.Run.FinishedAt.Time.Sub(e.Run.StartedAt).Round(time.Second).String()
			}
			project := e.Run.ProjectPath
			if e.Run.DryRun {
				project += " (dry run)"
			}
			fmt.Fprintf(out, "%-20s  %-12s  %-10s  %s\n",
				e.Run.StartedAt.Format("2006-01-02 15:04:05"),
				e.Run.Status,
				duration,
				project,
			)
			for _, t := range e.Targets {
				line := fmt.Sprintf("    %-12s %-11s %s", t.Target, t.Outcome, t.RemoteDir)
				if t.Message != "" {
					line += "  " + t.Message
				}
				fmt.Fprintln(out, line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/pushback/config.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print commands and log to stderr")

	f := rootCmd.Flags()
	f.StringP("server", "s", "", "Comma separated remotes to back up to (default: the default remotes)")
	f.BoolP("dry-run", "n", false, "Show what would be transferred without changing anything")
	f.Bool("stats", false, "Print transfer statistics")
	f.Bool("no-multiplex", false, "Disable ssh connection sharing")
	f.String("rsync-extra", "", "Extra rsync arguments, split with shell rules (-e is ignored)")
	f.String("snapshot-mode", "", "none, yearly, monthly, weekly, daily, hourly or custom (default from config)")
	f.Int("snapshot-custom-hours", 0, "Window length in hours for --snapshot-mode=custom")
	f.Bool("force-all", false, "Never prompt: create new dirs on collision, keep large files, keep going")
	f.Bool("force-collision-new", false, "On a name collision create a new directory")
	f.Bool("force-collision-update", false, "On a name collision update the existing directory")
	f.Bool("force-backupignore", false, "Append ignored large files to .backupignore without asking")
	f.Bool("keep-going", false, "Try every remote even after one fails")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config and global ignore")
	configCmd.AddCommand(configShowCmd)

	// remote subcommands
	remoteCmd.AddCommand(remoteListCmd)
	remoteListCmd.Flags().StringP("server", "s", "", "Comma separated remotes to list (default: the default remotes)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringP("project", "p", ".", "Project directory the paths belong to")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
}
