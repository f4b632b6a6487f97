package main

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sxvrs/internal/config"
	"sxvrs/internal/fileutil"
	"sxvrs/internal/ipc"
	"sxvrs/internal/recorder"
)

func newCamerasCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "cameras",
		Aliases: []string{"list"},
		Short:   "List configured cameras and their recorder state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.tryClient()
			if client == nil {
				return listOfflineCameras(cmd, ctx)
			}
			defer client.Close()

			resp, err := client.List()
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Cameras) == 0 && len(resp.Disabled) == 0 {
				fmt.Fprintln(out, "No cameras configured")
				return nil
			}
			fmt.Fprint(out, tableSpec{
				headers:  []string{"Camera", "Phase", "Status", "Mode", "Watcher", "Cycle", "Errors", "Latest file"},
				rows:     cameraRows(resp.Cameras),
				aligns:   []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				maxWidth: map[int]int{7: 60},
			}.render())
			for _, off := range resp.Disabled {
				fmt.Fprintf(out, "%s is disabled: %s\n", off.Name, off.Reason)
			}
			return nil
		},
	}
}

func cameraRows(cameras []recorder.Status) [][]string {
	rows := make([][]string, 0, len(cameras))
	for _, cam := range cameras {
		rows = append(rows, []string{
			cam.Name,
			string(cam.Phase),
			cam.State,
			cam.Mode,
			yesNo(cam.Watcher),
			strconv.FormatInt(cam.Iteration, 10),
			strconv.Itoa(cam.ErrorCount),
			cam.LatestFile,
		})
	}
	return rows
}

func listOfflineCameras(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	cameras, err := cfg.ResolveCameras()
	if err != nil {
		return err
	}
	if ctx.jsonOutput() {
		names := make([]string, 0, len(cameras))
		for _, cam := range cameras {
			names = append(names, cam.Name)
		}
		return writeJSON(cmd, map[string]any{"running": false, "cameras": names})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Daemon is not running; showing configured cameras")
	if len(cameras) == 0 {
		fmt.Fprintln(out, "No cameras configured")
		return nil
	}
	rows := make([][]string, 0, len(cameras))
	for _, cam := range cameras {
		quota := "unlimited"
		if cam.StorageMaxSize > 0 {
			quota = humanize.IBytes(uint64(cam.StorageMaxSize))
		}
		mode := "command"
		if cam.UsesPipeline() {
			mode = "pipeline"
		}
		rows = append(rows, []string{cam.Name, mode, yesNo(cam.Autostart), cam.RecordTime.String(), quota, cam.StoragePath})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Camera", "Mode", "Autostart", "Segment", "Quota", "Storage"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}

func newCameraCommand(ctx *commandContext) *cobra.Command {
	cameraCmd := &cobra.Command{
		Use:   "camera",
		Short: "Inspect a single camera",
	}
	cameraCmd.AddCommand(&cobra.Command{
		Use:   "show <camera>",
		Short: "Show detailed recorder state for a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Camera(args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Camera)
				}
				printCameraDetail(cmd.OutOrStdout(), resp.Camera)
				return nil
			})
		},
	})
	return cameraCmd
}

func printCameraDetail(w io.Writer, cam recorder.Status) {
	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "%-14s %s\n", label+":", value)
	}
	field("Camera", cam.Name)
	field("Phase", string(cam.Phase))
	field("Status", cam.State)
	field("Mode", cam.Mode)
	field("Recording", yesNo(cam.Recording))
	field("Watcher", yesNo(cam.Watcher))
	field("Cycle", strconv.FormatInt(cam.Iteration, 10))
	field("Errors", strconv.Itoa(cam.ErrorCount))
	if !cam.CycleStarted.IsZero() {
		field("Cycle started", cam.CycleStarted.Local().Format(time.DateTime))
	}
	if !cam.BackoffUntil.IsZero() {
		field("Backoff until", cam.BackoffUntil.Local().Format(time.DateTime))
	}
	field("Latest file", cam.LatestFile)
	field("Snapshot", cam.Snapshot)
	field("Last error", cam.LastError)
	if r := cam.LastReap; r != nil {
		field("Last reap", fmt.Sprintf("%s: %d deleted (%s), %s remaining",
			humanize.Time(r.At), r.Deleted, humanize.IBytes(uint64(r.DeletedBytes)), humanize.IBytes(uint64(r.RemainingBytes))))
	}
}

func cameraSummary(cam recorder.Status) string {
	parts := []string{string(cam.Phase)}
	if cam.Watcher {
		parts = append(parts, "watcher on")
	}
	if cam.ErrorCount > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", cam.ErrorCount))
	}
	if !cam.BackoffUntil.IsZero() {
		parts = append(parts, "backing off until "+cam.BackoffUntil.Local().Format(time.TimeOnly))
	}
	if cam.LatestFile != "" {
		parts = append(parts, filepath.Base(cam.LatestFile))
	}
	return strings.Join(parts, ", ")
}

// toggleCommand builds the start/stop pair shared by record and watcher.
func toggleCommand(ctx *commandContext, use, short, verb string, start, stop func(*ipc.Client, string) (*ipc.CameraResponse, error)) *cobra.Command {
	parent := &cobra.Command{Use: use, Short: short}
	for _, action := range []struct {
		name string
		call func(*ipc.Client, string) (*ipc.CameraResponse, error)
		done string
	}{
		{"start", start, verb + " requested"},
		{"stop", stop, verb + " stop requested"},
	} {
		parent.AddCommand(&cobra.Command{
			Use:   action.name + " <camera>",
			Short: fmt.Sprintf("%s %s for a camera", strings.ToUpper(action.name[:1])+action.name[1:], strings.ToLower(verb)),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := action.call(client, args[0])
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp.Camera)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s for %s (phase %s)\n", action.done, resp.Camera.Name, resp.Camera.Phase)
					return nil
				})
			},
		})
	}
	return parent
}

func newRecordCommand(ctx *commandContext) *cobra.Command {
	return toggleCommand(ctx, "record", "Start or stop recording for a camera", "Recording",
		(*ipc.Client).RecordStart, (*ipc.Client).RecordStop)
}

func newWatcherCommand(ctx *commandContext) *cobra.Command {
	return toggleCommand(ctx, "watcher", "Start or stop snapshot writing for a camera", "Watcher",
		(*ipc.Client).WatcherStart, (*ipc.Client).WatcherStop)
}

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <camera> [dest]",
		Short: "Copy the latest snapshot of a camera",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Camera(args[0])
				if err != nil {
					return err
				}
				src := resp.Camera.Snapshot
				if src == "" {
					return fmt.Errorf("camera %s has no snapshot yet (is the watcher running?)", resp.Camera.Name)
				}
				dest := resp.Camera.Name + filepath.Ext(src)
				if len(args) == 2 {
					expanded, err := config.ExpandPath(args[1])
					if err != nil {
						return err
					}
					dest = expanded
				}
				if err := fileutil.CopyFile(src, dest); err != nil {
					return fmt.Errorf("copy snapshot: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved snapshot of %s to %s\n", resp.Camera.Name, dest)
				return nil
			})
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.SortedFunc(maps.Keys(m), func(a, b string) int {
		return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
	})
}

var errNoCamera = errors.New("camera name is required")
