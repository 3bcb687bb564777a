// Command blit is the CLI front end for the transfer engine: it wires the
// local orchestrator and the remote daemon client behind copy/mirror/move
// subcommands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blitxfer/blit/internal/blitpaths"
	"github.com/blitxfer/blit/internal/changejournal"
	"github.com/blitxfer/blit/internal/daemon"
	"github.com/blitxfer/blit/internal/model"
	"github.com/blitxfer/blit/internal/orchestrator"
	"github.com/blitxfer/blit/internal/perf"
)

func main() {
	var opts model.Options

	newRunCmd := func(use, short string, mode orchestrator.Mode) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <source> <dest>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTransfer(cmd.Context(), args[0], args[1], mode, opts)
			},
		}
	}

	root := &cobra.Command{Use: "blit", Short: "high-throughput file transfer"}
	copyCmd := newRunCmd("copy", "additively copy a directory tree", orchestrator.ModeCopy)
	mirrorCmd := newRunCmd("mirror", "mirror a directory tree, deleting stale destination entries", orchestrator.ModeMirror)
	moveCmd := newRunCmd("move", "mirror then remove the transferred source entries", orchestrator.ModeMove)

	for _, c := range []*cobra.Command{copyCmd, mirrorCmd, moveCmd} {
		c.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan and report, write nothing")
		c.Flags().BoolVar(&opts.SkipUnchanged, "skip-unchanged", true, "skip files the manifest diff marks unchanged")
		c.Flags().BoolVar(&opts.Checksum, "checksum", false, "strengthen unchanged detection with partial/full BLAKE3")
		c.Flags().BoolVar(&opts.PreserveSymlinks, "preserve-symlinks", true, "recreate symlinks instead of following them")
		c.Flags().BoolVar(&opts.IncludeSymlinks, "include-symlinks", true, "include symlinks as entries")
		c.Flags().IntVar(&opts.Workers, "workers", 0, "worker pool size (0 = logical CPUs)")
		c.Flags().BoolVar(&opts.ForceTar, "force-tar", false, "always pack small files into tar shards")
		c.Flags().BoolVar(&opts.DebugMode, "debug", false, "cap the worker pool and emit diagnostic logging")
		c.Flags().BoolVar(&opts.PerfHistory, "perf-history", true, "append a performance record at the end of the run")
		root.AddCommand(c)
	}

	if err := root.Execute(); err != nil {
		logrus.StandardLogger().WithError(err).Error("blit exited with an error")
		os.Exit(1)
	}
}

func runTransfer(ctx context.Context, source, dest string, mode orchestrator.Mode, opts model.Options) error {
	log := logrus.StandardLogger()

	sourceRemote := blitpaths.IsRemote(source)
	destRemote := blitpaths.IsRemote(dest)

	switch {
	case !sourceRemote && !destRemote:
		return runLocal(ctx, source, dest, mode, opts, log)
	case !sourceRemote && destRemote:
		return runPush(ctx, source, dest, mode)
	case sourceRemote && !destRemote:
		return runPull(ctx, source, dest, mode)
	default:
		return fmt.Errorf("blit: remote-to-remote transfers are not supported")
	}
}

func runLocal(ctx context.Context, source, dest string, mode orchestrator.Mode, opts model.Options, log *logrus.Logger) error {
	tracker, err := changejournal.Load(log)
	if err != nil {
		log.WithError(err).Warn("change journal unavailable, continuing without it")
		tracker = nil
	}

	predictor, err := perf.Load()
	if err != nil {
		log.WithError(err).Warn("performance predictor state unavailable, using defaults")
	}

	run := &orchestrator.Run{
		SourceRoot: source,
		DestRoot:   dest,
		Mode:       mode,
		Options:    opts,
		Tracker:    tracker,
		Predictor:  predictor,
		Log:        log,
	}

	summary, err := run.Execute(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("copied %d file(s), %d byte(s)", summary.CopiedFiles, summary.TotalBytes)
	if summary.FastPath != "" {
		fmt.Printf(" (fast path: %s)", summary.FastPath)
	}
	if mode != orchestrator.ModeCopy {
		fmt.Printf(", deleted %d file(s) and %d dir(s)", summary.DeletedFiles, summary.DeletedDirs)
	}
	fmt.Println()
	if len(summary.Errors) > 0 {
		return fmt.Errorf("blit: %d file(s) failed", len(summary.Errors))
	}
	return nil
}

func runPush(ctx context.Context, source, destEndpoint string, mode orchestrator.Mode) error {
	ep, err := blitpaths.Parse(destEndpoint)
	if err != nil {
		return err
	}
	cc, err := daemon.Dial(ep.Addr())
	if err != nil {
		return fmt.Errorf("blit: dialing %s: %w", ep.Addr(), err)
	}
	defer cc.Close()

	complete, err := daemon.PushTree(ctx, cc, ep.Module, ep.Path, source, mode != orchestrator.ModeCopy)
	if err != nil {
		return err
	}
	fmt.Printf("pushed %d file(s), %d byte(s)\n", complete.CopiedFiles, complete.TotalBytes)
	return nil
}

func runPull(ctx context.Context, sourceEndpoint, dest string, mode orchestrator.Mode) error {
	ep, err := blitpaths.Parse(sourceEndpoint)
	if err != nil {
		return err
	}
	cc, err := daemon.Dial(ep.Addr())
	if err != nil {
		return fmt.Errorf("blit: dialing %s: %w", ep.Addr(), err)
	}
	defer cc.Close()

	if err := daemon.PullTree(ctx, cc, ep.Module, ep.Path, dest, mode != orchestrator.ModeCopy); err != nil {
		return err
	}
	fmt.Println("pull complete")
	return nil
}
