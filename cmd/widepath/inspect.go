package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/widepath/internal/entry"
	"github.com/bamsammich/widepath/internal/pathname"
	"github.com/bamsammich/widepath/internal/walk"
)

func (a *app) canonCmd() *cobra.Command {
	var opts pathname.Options
	var classify bool
	cmd := &cobra.Command{
		Use:   "canon [flags] <path>...",
		Short: "Print the canonical form of paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, arg := range args {
				p, err := a.canon.Canonicalize(arg, opts)
				if err != nil {
					return err
				}
				if classify {
					cls := pathname.Classify(arg)
					fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", p, cls.Form, p.Form())
					continue
				}
				fmt.Fprintln(a.stdout, p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.ForceLong, "long", false, "always use the extended-length form")
	cmd.Flags().BoolVar(&opts.KeepDotOrSpace, "keep-dot-space", false,
		"keep a trailing dot or space on the final component")
	cmd.Flags().BoolVar(&opts.TrailingSeparator, "trailing-separator", false,
		"end the result with a separator")
	cmd.Flags().BoolVar(&classify, "classify", false, "also print the input and output notation")
	return cmd
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>...",
		Short: "Describe filesystem entries without following links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := entry.NewResolver(a.fs)
			for _, arg := range args {
				p, err := a.canon.Canonicalize(arg, pathname.Options{})
				if err != nil {
					return err
				}
				var info entry.Info
				_, err = a.policy.Do(cmd.Context(), func() (err error) {
					info, _, err = resolver.Resolve(cmd.Context(), p, entry.ResolveOptions{})
					return err
				}, nil)
				if err != nil {
					return err
				}
				a.printInfo(info)
				if info.IsReparsePoint {
					if target, err := a.fs.ReadLink(cmd.Context(), p, nil); err == nil {
						fmt.Fprintf(a.stdout, "  target: %s\n", target)
					}
				}
			}
			return nil
		},
	}
}

func (a *app) printInfo(info entry.Info) {
	var flags []string
	if info.IsReadOnly {
		flags = append(flags, "readonly")
	}
	if info.IsHidden {
		flags = append(flags, "hidden")
	}
	fmt.Fprintf(a.stdout, "%s\n  kind: %s\n  size: %d\n  attributes: %#x %s\n  modified: %s\n",
		info.Path, info.Kind(), info.Size, uint32(info.Attr), strings.Join(flags, ","),
		info.ModTime.Format(time.RFC3339))
}

func (a *app) walkCmd() *cobra.Command {
	var (
		o                 opFlags
		followMountPoints bool
		followSymlinks    bool
		filesOnly         bool
		dirsOnly          bool
		long              bool
	)
	cmd := &cobra.Command{
		Use:   "walk [flags] <directory>",
		Short: "List the entries below a directory",
		Long: `List the entries below a directory, relative to it. Directories are
listed before their contents. Mount points and symbolic links are listed but
not entered unless asked; a link target that was already visited is never
entered twice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("follow-mount-points") && a.cfg.Walk.FollowMountPoints != nil {
				followMountPoints = *a.cfg.Walk.FollowMountPoints
			}
			if !flags.Changed("follow-symlinks") && a.cfg.Walk.FollowSymlinks != nil {
				followSymlinks = *a.cfg.Walk.FollowSymlinks
			}
			o.applyConfig(cmd, a)
			if filesOnly && dirsOnly {
				return fmt.Errorf("--files and --dirs are mutually exclusive")
			}

			root, err := a.canon.Canonicalize(args[0], pathname.Options{})
			if err != nil {
				return err
			}
			f, err := o.filters(a)
			if err != nil {
				return err
			}
			opts := walk.Options{
				Canonicalizer:      a.canon,
				Include:            f.Include,
				Recurse:            f.Recurse,
				OnError:            f.OnError,
				Recursive:          o.recursive,
				ContinueOnNotFound: o.continueOnNotFound,
				FollowMountPoints:  followMountPoints,
				FollowSymlinks:     followSymlinks,
			}
			switch {
			case filesOnly:
				opts.Kinds = walk.KindFiles
			case dirsOnly:
				opts.Kinds = walk.KindDirectories
			}

			w := walk.New(cmd.Context(), entry.NewResolver(a.fs), root, opts)
			var n int
			for w.Next() {
				info := w.Entry()
				n++
				if long {
					fmt.Fprintf(a.stdout, "%-8s %12d  %s\n", info.Kind(), info.Size, info.RelPath)
					continue
				}
				fmt.Fprintln(a.stdout, info.RelPath)
			}
			if err := w.Err(); err != nil {
				return err
			}
			a.logger.Info("walk complete", "root", string(root), "entries", n, "links_not_entered", w.Skipped())
			return nil
		},
	}
	fl := cmd.Flags()
	fl.BoolVarP(&o.recursive, "recursive", "r", false, "descend into subdirectories")
	fl.BoolVar(&followMountPoints, "follow-mount-points", false, "enter mount points and junctions")
	fl.BoolVar(&followSymlinks, "follow-symlinks", false, "enter directory symbolic links")
	fl.BoolVar(&filesOnly, "files", false, "list files only")
	fl.BoolVar(&dirsOnly, "dirs", false, "list directories only")
	fl.BoolVarP(&long, "long", "l", false, "show kind and size")
	fl.BoolVar(&o.continueOnNotFound, "continue-on-not-found", false,
		"ignore entries that vanish during the walk")
	fl.BoolVarP(&o.keepGoing, "keep-going", "k", false, "report unreadable directories and continue")
	o.registerFilters(fl)
	return cmd
}
