package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/widepath/internal/config"
	"github.com/bamsammich/widepath/internal/engine"
	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/logging"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/retry"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, native.Default))
}

func run(args []string, stdout, stderr io.Writer, newFS func(projectionRoot string) native.FS) int {
	a := &app{stdout: stdout, stderr: stderr, newFS: newFS}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if cerr := a.close(); cerr != nil {
		fmt.Fprintf(stderr, "close log: %v\n", cerr)
	}
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// app holds the state shared by every subcommand. setup fills it from the
// config file and the persistent flags before a subcommand runs.
type app struct {
	stdout io.Writer
	stderr io.Writer
	newFS  func(projectionRoot string) native.FS

	verbose        bool
	quiet          bool
	logFile        string
	configFile     string
	projectionRoot string
	retries        int
	retryDelay     time.Duration
	opsLimit       float64
	threshold      int

	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	canon    *pathname.Canonicalizer
	fs       native.FS
	policy   retry.Policy
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "widepath",
		Short: "Copy, move and delete Windows trees with long-path, junction and retry handling",
		Long: `widepath copies, moves and deletes directory trees addressed by Windows paths.

Paths of any notation (relative, drive-relative, UNC, \\?\ and volume GUID)
are canonicalized first and promoted to the extended-length form when they
exceed the long-path threshold. Mount points and junctions are never
traversed; symbolic links are followed or recreated on request. Transient
sharing violations are retried.

On non-Windows hosts the Windows namespace is projected onto a directory
tree (see --projection-root).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate("widepath {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.StringVar(&a.logFile, "log", "", "append a structured JSON log to FILE")
	pf.StringVar(&a.configFile, "config", "", "config file (default: "+config.Path()+")")
	pf.StringVar(&a.projectionRoot, "projection-root", "",
		"directory holding the projected Windows namespace (non-Windows only)")
	pf.IntVar(&a.retries, "retries", 2, "extra attempts after a sharing violation")
	pf.DurationVar(&a.retryDelay, "retry-delay", retry.Default().Delay, "wait between attempts")
	pf.Float64Var(&a.opsLimit, "ops-limit", 0, "cap native mutations per second (0 = unlimited)")
	pf.IntVar(&a.threshold, "long-path-threshold", pathname.MaxPath,
		"length above which paths use the \\\\?\\ form")

	root.AddCommand(
		a.copyCmd(),
		a.moveCmd(),
		a.deleteCmd(),
		a.canonCmd(),
		a.statCmd(),
		a.walkCmd(),
		a.configCmd(),
		a.versionCmd(),
		docsCmd,
	)
	return root
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.stdout, "widepath %s\n", version)
		},
	}
}

// setup loads the config file and applies it under the flags the user
// set explicitly.
func (a *app) setup(cmd *cobra.Command) error {
	if a.verbose && a.quiet {
		return errors.New("--verbose and --quiet are mutually exclusive")
	}

	path := a.configFile
	if path == "" {
		path = config.Path()
	}
	var err error
	if path != "" {
		if a.cfg, err = config.LoadFile(path); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	a.logger, a.closeLog, err = logging.New(logging.Options{
		Stderr:  a.stderr,
		LogFile: a.logFile,
		Verbose: a.verbose,
		Quiet:   a.quiet,
	})
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(a.logger)

	flags := cmd.Flags()
	a.policy = a.cfg.RetryPolicy(retry.Default())
	if flags.Changed("retries") {
		a.policy.MaxAttempts = a.retries + 1
	}
	if flags.Changed("retry-delay") {
		a.policy.Delay = a.retryDelay
	}

	a.canon = pathname.New(a.cfg.Environment(pathname.System()))
	if a.cfg.Paths.Threshold != nil {
		a.canon.Threshold = *a.cfg.Paths.Threshold
	}
	if flags.Changed("long-path-threshold") {
		a.canon.Threshold = a.threshold
	}

	if !flags.Changed("projection-root") && a.cfg.Projection.Root != nil {
		a.projectionRoot = *a.cfg.Projection.Root
	}
	if !flags.Changed("ops-limit") && a.cfg.Walk.OpsLimit != nil {
		a.opsLimit = *a.cfg.Walk.OpsLimit
	}
	if a.opsLimit < 0 {
		return fmt.Errorf("--ops-limit must not be negative, got %g", a.opsLimit)
	}
	a.fs = a.newFS(a.projectionRoot)

	a.logger.Debug("configured",
		"config", path,
		"attempts", a.policy.MaxAttempts,
		"retry_delay", a.policy.Delay,
		"threshold", a.canon.Threshold,
		"ops_limit", a.opsLimit,
	)
	return nil
}

func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	return a.closeLog()
}

// engine returns an Engine reporting to events.
func (a *app) engine(events chan<- event.Event) *engine.Engine {
	e := engine.New(a.fs, a.canon)
	e.Logger = a.logger
	e.Events = events
	e.Limiter = engine.NewOpsLimiter(a.opsLimit)
	return e
}

// display returns the canonical form of a path argument for output, or
// the argument itself when it does not canonicalize.
func (a *app) display(arg string) string {
	p, err := a.canon.Canonicalize(arg, pathname.Options{})
	if err != nil {
		return arg
	}
	return string(p)
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
