package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/widepath/internal/engine"
	"github.com/bamsammich/widepath/internal/event"
	"github.com/bamsammich/widepath/internal/filter"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/stats"
	"github.com/bamsammich/widepath/internal/ui"
)

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

// opFlags are the flags shared by copy, move and delete.
type opFlags struct {
	chain *filter.Chain

	recursive          bool
	overwrite          bool
	ignoreReadOnly     bool
	continueOnNotFound bool
	preserveLinks      bool
	verify             bool
	keepGoing          bool
	noProgress         bool
	skipHidden         bool
	mountPoints        string
	filterFile         string
	minSize            string
	maxSize            string
}

func (o *opFlags) registerCommon(fs *pflag.FlagSet) {
	fs.BoolVar(&o.ignoreReadOnly, "ignore-readonly", false,
		"clear read-only, hidden and system attributes once when they block a change")
	fs.BoolVar(&o.continueOnNotFound, "continue-on-not-found", false,
		"treat entries that vanish during the operation as done")
	fs.BoolVarP(&o.keepGoing, "keep-going", "k", false,
		"report failed entries and continue (exit code 1)")
	fs.BoolVar(&o.noProgress, "no-progress", false, "disable progress lines")
}

func (o *opFlags) registerCopy(fs *pflag.FlagSet) {
	fs.BoolVar(&o.overwrite, "overwrite", false, "replace existing destination files")
	fs.BoolVar(&o.preserveLinks, "preserve-links", false,
		"recreate symbolic links instead of copying their targets")
	fs.StringVar(&o.mountPoints, "mount-points", engine.MountPointSkip.String(),
		"what to do with mount points below the source: skip or recreate")
	fs.BoolVar(&o.verify, "verify", false, "verify checksums after copy (BLAKE3)")
}

func (o *opFlags) registerFilters(fs *pflag.FlagSet) {
	o.chain = filter.NewChain()
	fs.Var(&filterFlag{chain: o.chain, include: false}, "exclude",
		"exclude entries matching PATTERN (repeatable)")
	fs.Var(&filterFlag{chain: o.chain, include: true}, "include",
		"include entries matching PATTERN (repeatable)")
	fs.StringVar(&o.filterFile, "filter", "", "read filter rules from FILE")
	fs.StringVar(&o.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	fs.StringVar(&o.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
	fs.BoolVar(&o.skipHidden, "skip-hidden", false, "skip hidden entries")
}

// applyConfig fills flags the user did not set from the config file.
func (o *opFlags) applyConfig(cmd *cobra.Command, a *app) {
	if !cmd.Flags().Changed("continue-on-not-found") && a.cfg.Walk.ContinueOnNotFound != nil {
		o.continueOnNotFound = *a.cfg.Walk.ContinueOnNotFound
	}
}

func (o *opFlags) mountPointPolicy() (engine.MountPointPolicy, error) {
	switch o.mountPoints {
	case "", "skip":
		return engine.MountPointSkip, nil
	case "recreate":
		return engine.MountPointRecreate, nil
	}
	return 0, fmt.Errorf("invalid --mount-points %q (use skip or recreate)", o.mountPoints)
}

// filters builds the engine hooks from the filter flags and --keep-going.
func (o *opFlags) filters(a *app) (engine.Filters, error) {
	var f engine.Filters
	if o.chain != nil {
		if o.filterFile != "" {
			if err := o.chain.LoadFile(o.filterFile); err != nil {
				return f, fmt.Errorf("load filter file: %w", err)
			}
		}
		if o.minSize != "" {
			n, err := filter.ParseSize(o.minSize)
			if err != nil {
				return f, fmt.Errorf("invalid --min-size: %w", err)
			}
			o.chain.SetMinSize(n)
		}
		if o.maxSize != "" {
			n, err := filter.ParseSize(o.maxSize)
			if err != nil {
				return f, fmt.Errorf("invalid --max-size: %w", err)
			}
			o.chain.SetMaxSize(n)
		}
		if o.skipHidden {
			o.chain.SetSkipHidden(true)
		}
		if !o.chain.Empty() {
			f.Include = o.chain.Entry
			f.Recurse = o.chain.Entry
		}
	}
	if o.keepGoing {
		f.OnError = func(path pathname.Path, err error) bool {
			a.logger.Debug("continuing past failure", "path", string(path), "error", err)
			return true
		}
	}
	return f, nil
}

func (a *app) copyCmd() *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:   "copy [flags] <source> <destination>",
		Short: "Copy a file or directory tree",
		Long: `Copy a file or directory tree. The destination names the entry to create.

Directories are created before their contents. Mount points below the source
are skipped unless --mount-points=recreate; symbolic links are copied through
to their targets unless --preserve-links.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.applyConfig(cmd, a)
			args2, err := o.copyMoveArgs(a, args)
			if err != nil {
				return err
			}
			return a.execute(cmd.Context(), "copy", a.display(args[0]), o.noProgress,
				func(ctx context.Context, e *engine.Engine, c *stats.Collector) (engine.Result, error) {
					args2.Stats = c
					return e.Copy(ctx, args2, a.policy)
				})
		},
	}
	cmd.Flags().BoolVarP(&o.recursive, "recursive", "r", false, "copy directories recursively")
	o.registerCopy(cmd.Flags())
	o.registerCommon(cmd.Flags())
	o.registerFilters(cmd.Flags())
	return cmd
}

func (a *app) moveCmd() *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:   "move [flags] <source> <destination>",
		Short: "Move a file or directory tree",
		Long: `Move a file or directory tree. The destination names the entry to create.

On one volume this is a single rename. Across volumes the tree is copied,
recreating links and mount points, and the source is deleted once every
entry was copied. With --overwrite an existing destination directory is
deleted first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.applyConfig(cmd, a)
			args2, err := o.copyMoveArgs(a, args)
			if err != nil {
				return err
			}
			return a.execute(cmd.Context(), "move", a.display(args[0]), o.noProgress,
				func(ctx context.Context, e *engine.Engine, c *stats.Collector) (engine.Result, error) {
					args2.Stats = c
					return e.Move(ctx, args2, a.policy)
				})
		},
	}
	o.registerCopy(cmd.Flags())
	o.registerCommon(cmd.Flags())
	return cmd
}

func (o *opFlags) copyMoveArgs(a *app, args []string) (engine.CopyMoveArguments, error) {
	mp, err := o.mountPointPolicy()
	if err != nil {
		return engine.CopyMoveArguments{}, err
	}
	f, err := o.filters(a)
	if err != nil {
		return engine.CopyMoveArguments{}, err
	}
	return engine.CopyMoveArguments{
		Source:             pathname.Path(args[0]),
		Destination:        pathname.Path(args[1]),
		Filters:            f,
		MountPoints:        mp,
		Recursive:          o.recursive,
		Overwrite:          o.overwrite,
		PreserveLinks:      o.preserveLinks,
		IgnoreReadOnly:     o.ignoreReadOnly,
		ContinueOnNotFound: o.continueOnNotFound,
		Verify:             o.verify,
	}, nil
}

func (a *app) deleteCmd() *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:     "delete [flags] <path>",
		Aliases: []string{"rm"},
		Short:   "Delete a file or directory tree",
		Long: `Delete a file or directory tree. Mount points, junctions and symbolic links
are unlinked, never traversed. A recursive delete removes files as they are
found and directories children first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.applyConfig(cmd, a)
			f, err := o.filters(a)
			if err != nil {
				return err
			}
			return a.execute(cmd.Context(), "delete", a.display(args[0]), o.noProgress,
				func(ctx context.Context, e *engine.Engine, c *stats.Collector) (engine.Result, error) {
					return e.Delete(ctx, engine.DeleteArguments{
						Path:               pathname.Path(args[0]),
						Stats:              c,
						Filters:            f,
						Recursive:          o.recursive,
						IgnoreReadOnly:     o.ignoreReadOnly,
						ContinueOnNotFound: o.continueOnNotFound,
					}, a.policy)
				})
		},
	}
	cmd.Flags().BoolVarP(&o.recursive, "recursive", "r", false, "delete directories recursively")
	o.registerCommon(cmd.Flags())
	o.registerFilters(cmd.Flags())
	return cmd
}

type opFunc func(ctx context.Context, e *engine.Engine, c *stats.Collector) (engine.Result, error)

// execute runs one engine operation with a presenter in the background
// and maps the outcome to the exit code: 0 success, 1 when entries failed
// under --keep-going, 2 when the operation failed.
func (a *app) execute(parent context.Context, op, root string, noProgress bool, fn opFunc) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)

	tty, width := false, 0
	if f, ok := a.stderr.(*os.File); ok {
		tty, width = ui.Terminal(f)
	}
	presenter := ui.NewPresenter(ui.Config{
		Writer:     a.stdout,
		ErrWriter:  a.stderr,
		Stats:      collector,
		Op:         op,
		Root:       root,
		Width:      width,
		IsTTY:      tty,
		Quiet:      a.quiet,
		Verbose:    a.verbose,
		NoProgress: noProgress,
	})

	var presenterErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		presenterErr = presenter.Run(events)
	}()

	res, err := fn(ctx, a.engine(events), collector)
	stop()
	close(events)
	wg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(a.stderr, "presenter: %v\n", presenterErr)
	}

	if !a.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(a.stderr, summary)
		}
	}

	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v (code %d)\n", err, res.ErrorCode)
		return &exitError{code: 2}
	}
	if res.Failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}
