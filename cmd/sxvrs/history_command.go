package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sxvrs/internal/config"
	"sxvrs/internal/ipc"
	"sxvrs/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var since time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "history [camera]",
		Short: "Show recorded camera events",
		Long:  "Show the event journal: cycles, evictions, start failures, backoffs, snapshots, and restarts.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.HistoryRequest{Kind: strings.TrimSpace(kind), Limit: limit}
			if len(args) == 1 {
				req.Camera = args[0]
			}
			if since > 0 {
				req.Since = time.Now().Add(-since)
			}

			events, err := loadHistory(cmd.Context(), ctx, req)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, events)
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			fmt.Fprint(out, tableSpec{
				headers:  []string{"Time", "Camera", "Event", "Cycle", "Detail"},
				rows:     historyRows(events),
				aligns:   []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				maxWidth: map[int]int{4: 80},
			}.render())
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only show one event kind (cycle_started, file_evicted, backoff, ...)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only show events newer than this, such as 24h")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of events")
	return cmd
}

// loadHistory asks the daemon when it is running and reads the journal file
// directly otherwise.
func loadHistory(ctx context.Context, cmdCtx *commandContext, req ipc.HistoryRequest) ([]journal.Event, error) {
	if client := cmdCtx.tryClient(); client != nil {
		defer client.Close()
		resp, err := client.History(req)
		if err != nil {
			return nil, err
		}
		return resp.Events, nil
	}

	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return readJournal(ctx, cfg, journal.Query{
		Camera: req.Camera,
		Kind:   journal.Kind(req.Kind),
		Since:  req.Since,
		Limit:  req.Limit,
	})
}

func readJournal(ctx context.Context, cfg *config.Config, q journal.Query) ([]journal.Event, error) {
	if _, err := os.Stat(cfg.JournalPath()); os.IsNotExist(err) {
		return nil, nil
	}
	store, err := journal.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(ctx, q)
}

func historyRows(events []journal.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		cycle := ""
		if ev.Iteration > 0 {
			cycle = strconv.FormatInt(ev.Iteration, 10)
		}
		rows = append(rows, []string{
			ev.CreatedAt.Local().Format(time.DateTime),
			ev.Camera,
			string(ev.Kind),
			cycle,
			ev.Detail,
		})
	}
	return rows
}
