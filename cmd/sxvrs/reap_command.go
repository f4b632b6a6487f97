package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sxvrs/internal/config"
	"sxvrs/internal/ipc"
	"sxvrs/internal/logging"
	"sxvrs/internal/storage"
)

func newReapCommand(ctx *commandContext) *cobra.Command {
	var dir string
	var maxSize string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "reap [camera]",
		Short: "Evict the oldest recordings until storage is under quota",
		Long: "Ask the daemon to run a storage pass for a camera now, or with --dir and --max\n" +
			"run a pass over any directory without a daemon.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dir) != "" {
				return reapOffline(cmd, ctx, dir, maxSize, verbose)
			}
			if len(args) == 0 {
				return errNoCamera
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reap(args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				printReap(cmd.OutOrStdout(), *resp, verbose)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Reap this directory directly instead of asking the daemon")
	cmd.Flags().StringVar(&maxSize, "max", "", "Size ceiling for --dir, such as 500MB or 10GiB")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every deleted file")
	return cmd
}

func reapOffline(cmd *cobra.Command, ctx *commandContext, dir, maxSize string, verbose bool) error {
	if strings.TrimSpace(maxSize) == "" {
		return fmt.Errorf("--max is required with --dir")
	}
	limit, err := humanize.ParseBytes(maxSize)
	if err != nil {
		return fmt.Errorf("parse --max: %w", err)
	}
	root, err := config.ExpandPath(dir)
	if err != nil {
		return err
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg, ctx.resolvedLogLevel(cfg))
	if err != nil {
		return err
	}
	result, err := storage.Reap(cmd.Context(), root, int64(limit), storage.Options{Logger: logger})
	if err != nil {
		return err
	}
	resp := ipc.NewReapResponse(result)
	if ctx.jsonOutput() {
		return writeJSON(cmd, resp)
	}
	printReap(cmd.OutOrStdout(), resp, verbose)
	return nil
}

func printReap(w io.Writer, resp ipc.ReapResponse, verbose bool) {
	fmt.Fprintf(w, "Reaped %s: deleted %d files (%s), removed %d empty directories\n",
		resp.Root, len(resp.Deleted), humanize.IBytes(uint64(resp.DeletedBytes)), len(resp.RemovedDirs))
	fmt.Fprintf(w, "Kept %d files (%s)\n", resp.Kept, humanize.IBytes(uint64(resp.RemainingBytes)))
	if verbose {
		for _, path := range resp.Deleted {
			fmt.Fprintf(w, "  deleted %s\n", path)
		}
	}
	for _, e := range resp.Errors {
		fmt.Fprintf(w, "  failed %s: %s\n", e.Path, e.Message)
	}
}
