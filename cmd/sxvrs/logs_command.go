package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sxvrs/internal/ipc"
	"sxvrs/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs [camera]",
		Short: "Show daemon logs, or the process log of one camera",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			camera := ""
			if len(args) == 1 {
				camera = args[0]
			}
			out := cmd.OutOrStdout()
			emit := func(line string) { fmt.Fprintln(out, line) }

			runCtx := cmd.Context()
			if runCtx == nil {
				runCtx = context.Background()
			}
			if follow {
				var stop context.CancelFunc
				runCtx, stop = signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
			}

			if client := ctx.tryClient(); client != nil {
				defer client.Close()
				return tailViaDaemon(runCtx, client, camera, lines, follow, emit)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logs.Path(cfg, camera)
			if follow {
				return logs.Follow(runCtx, path, lines, emit)
			}
			res, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			for _, line := range res.Lines {
				emit(line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	return cmd
}

func tailViaDaemon(ctx context.Context, client *ipc.Client, camera string, limit int, follow bool, emit func(string)) error {
	req := ipc.LogTailRequest{Camera: camera, Offset: -1, Limit: limit}
	for {
		resp, err := client.LogTail(req)
		if err != nil {
			return err
		}
		for _, line := range resp.Lines {
			emit(line)
		}
		if !follow {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		req = ipc.LogTailRequest{
			Camera:     camera,
			Offset:     resp.Offset,
			Follow:     true,
			WaitMillis: int(time.Second / time.Millisecond),
		}
	}
}
