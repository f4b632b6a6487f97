package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sxvrs/internal/config"
	"sxvrs/internal/daemonctl"
	"sxvrs/internal/deps"
	"sxvrs/internal/preflight"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the sxvrs daemon and its cameras",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			socket, err := ctx.socketPath()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(socket, exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	var grace time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop all cameras and terminate the daemon process",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if grace <= 0 {
				grace = time.Duration(cfg.Daemon.StopTimeoutSeconds+cfg.Daemon.KillGraceSeconds) * time.Second
			}
			result, err := daemonctl.StopAndTerminate(cfg, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stopping cameras...")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&grace, "grace", 0, "How long to wait for a clean exit before killing the process (default: stop timeout + kill grace)")

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the sxvrs daemon in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			timeout := time.Duration(cfg.Daemon.StopTimeoutSeconds+10) * time.Second
			result, err := daemonctl.Restart(cfg, exe, daemonLaunchOptions(ctx), timeout)
			if err != nil {
				return err
			}
			if !result.WasRunning {
				fmt.Fprintln(stdout, "Daemon was not running, launching...")
			}
			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				if result.PID > 0 {
					fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.PID)
				} else {
					fmt.Fprintln(stdout, "Daemon restarted")
				}
			case daemonctl.StartStateRequested:
				if msg := strings.TrimSpace(result.Start.Message); msg != "" {
					fmt.Fprintln(stdout, msg)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and camera status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, snap)
			}
			stdout := cmd.OutOrStdout()
			renderStatus(stdout, cfg, snap, shouldColorize(stdout))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(w io.Writer, cfg *config.Config, snap daemonctl.Snapshot, colorize bool) {
	printSection(w, "Daemon", colorize)
	if snap.Reachable && snap.Daemon != nil {
		st := snap.Daemon
		if st.Running {
			detail := fmt.Sprintf("Running (pid %d)", st.PID)
			if !st.StartedAt.IsZero() {
				detail += ", started " + humanize.Time(st.StartedAt)
			}
			fmt.Fprintln(w, renderStatusLine("sxvrs", statusOK, detail, colorize))
		} else {
			fmt.Fprintln(w, renderStatusLine("sxvrs", statusWarn, fmt.Sprintf("Idle (pid %d); run `sxvrs start`", st.PID), colorize))
		}
		broker := fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port)
		if st.BrokerConnected {
			fmt.Fprintln(w, renderStatusLine("Broker", statusOK, "Connected to "+broker, colorize))
		} else {
			fmt.Fprintln(w, renderStatusLine("Broker", statusWarn, "Not connected to "+broker, colorize))
		}
		if st.Scratch != nil {
			detail := fmt.Sprintf("%s free of %s (%.1f%% used)", humanize.IBytes(st.Scratch.FreeBytes), humanize.IBytes(st.Scratch.TotalBytes), st.Scratch.UsedPercent)
			if st.Scratch.Mounted {
				detail += ", mounted by sxvrs"
			}
			fmt.Fprintln(w, renderStatusLine("Scratch", statusOK, detail, colorize))
		} else {
			fmt.Fprintln(w, renderStatusLine("Scratch", statusInfo, "Frame staging unavailable", colorize))
		}
		if st.LogPath != "" {
			fmt.Fprintln(w, renderStatusLine("Log", statusInfo, st.LogPath, colorize))
		}
	} else {
		fmt.Fprintln(w, renderStatusLine("sxvrs", statusError, "Not running", colorize))
	}
	fmt.Fprintln(w)

	printSection(w, "System Checks", colorize)
	lines, _ := checkLines(snap.Checks, colorize)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	printSection(w, "Dependencies", colorize)
	for _, line := range dependencyLines(snap.Dependencies, snap.Summary, colorize) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	if snap.Reachable && snap.Daemon != nil {
		printSection(w, "Cameras", colorize)
		if len(snap.Daemon.Cameras) == 0 && len(snap.Daemon.Disabled) == 0 {
			fmt.Fprintln(w, "No cameras configured")
			return
		}
		for _, cam := range snap.Daemon.Cameras {
			fmt.Fprintln(w, renderStatusLine(cam.Name, cameraKind(cam), cameraSummary(cam), colorize))
		}
		for _, off := range snap.Daemon.Disabled {
			fmt.Fprintln(w, renderStatusLine(off.Name, statusError, "Disabled: "+off.Reason, colorize))
		}
		return
	}

	printSection(w, "Journal", colorize)
	if len(snap.EventCounts) == 0 {
		fmt.Fprintln(w, "No recorded events")
		return
	}
	rows := make([][]string, 0, len(snap.EventCounts))
	for _, name := range sortedKeys(snap.EventCounts) {
		rows = append(rows, []string{name, strconv.Itoa(snap.EventCounts[name])})
	}
	fmt.Fprint(w, renderTable([]string{"Camera", "Events"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func dependencyLines(statuses []deps.Status, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+2)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	var missing []string
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Path != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Path)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, statusKindFromSeverity(daemonctl.Severity(dep)), detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing programs", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

// checkLines renders preflight results and reports whether any failed.
func checkLines(results []preflight.Result, colorize bool) ([]string, bool) {
	lines := make([]string, 0, len(results))
	failed := false
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
			failed = true
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines, failed
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath()}
	if ctx.logLevelFlag != nil {
		opts.LogLevel = strings.TrimSpace(*ctx.logLevelFlag)
	}
	return opts
}
