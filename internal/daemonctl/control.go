package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"sxvrs/internal/config"
	"sxvrs/internal/deps"
	"sxvrs/internal/ipc"
	"sxvrs/internal/journal"
	"sxvrs/internal/preflight"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// Launch starts a detached sxvrs daemon process in its own session.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches and/or starts the daemon and returns the resulting state.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	client, err := ipc.Dial(socketPath)
	launched := false
	if err != nil {
		if launchErr := Launch(executablePath, opts); launchErr != nil {
			return StartResult{}, launchErr
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		launched = true
	}
	defer client.Close()

	if launched {
		// A fresh daemon starts its cameras on its own; give it until the
		// broker connects to report running.
		if waitRunning(client, waitTimeout) {
			return StartResult{State: StartStateStarted, Launched: true}, nil
		}
		return StartResult{State: StartStateRequested, Launched: true, Message: "daemon launched; waiting for broker"}, nil
	}

	statusResp, statusErr := client.Status()
	if statusErr == nil && statusResp != nil && statusResp.Running {
		return StartResult{State: StartStateAlreadyRunning}, nil
	}

	resp, err := client.Start()
	if err != nil {
		return StartResult{}, err
	}
	message := strings.TrimSpace(resp.Message)
	if resp.Started {
		return StartResult{State: StartStateStarted, Message: message}, nil
	}
	if strings.EqualFold(message, "daemon already running") {
		return StartResult{State: StartStateAlreadyRunning, Message: message}, nil
	}
	if message == "" {
		message = "Start request sent"
	}
	return StartResult{State: StartStateRequested, Message: message}, nil
}

func waitRunning(client *ipc.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if st, err := client.Status(); err == nil && st.Running {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}

// WaitForShutdown waits until the daemon socket stops accepting connections.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			return nil
		}
		_ = client.Close()
		time.Sleep(pollInterval)
	}
	return errors.New("daemon did not stop: socket still accepting connections")
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

// ReadPID returns the pid recorded in pidPath, or 0 when absent.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q is malformed", pidPath)
	}
	return pid, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and removes its pid
// file and socket.
func ForceKillProcess(pidPath, socketPath string, fallbackPID int) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if socketPath != "" {
		_ = os.Remove(socketPath)
	}
	return pid, nil
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures the outcome of an in-place daemon restart.
type RestartResult struct {
	WasRunning bool
	PID        int
	Start      StartResult
}

// StopAndTerminate asks the daemon to shut down and force-kills the process
// if it is still alive after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	socketPath := cfg.SocketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if statusResp, statusErr := client.Status(); statusErr == nil {
		pid = statusResp.PID
	}
	resp, err := client.Shutdown()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid, StopAcknowledged: resp.Accepted}

	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), socketPath, pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart re-executes a running daemon in place, or launches one when none
// is running.
func Restart(cfg *config.Config, executablePath string, opts LaunchOptions, timeout time.Duration) (RestartResult, error) {
	socketPath := cfg.SocketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		start, startErr := EnsureStarted(socketPath, executablePath, opts, timeout)
		if startErr != nil {
			return RestartResult{}, startErr
		}
		return RestartResult{Start: start}, nil
	}

	before, err := client.Status()
	if err != nil {
		client.Close()
		return RestartResult{}, err
	}
	if _, err := client.Restart(); err != nil {
		client.Close()
		return RestartResult{}, err
	}
	client.Close()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		c, err := ipc.Dial(socketPath)
		if err != nil {
			continue
		}
		st, err := c.Status()
		c.Close()
		if err != nil || !st.StartedAt.After(before.StartedAt) {
			continue
		}
		return RestartResult{
			WasRunning: true,
			PID:        st.PID,
			Start:      StartResult{State: StartStateStarted, Launched: true},
		}, nil
	}
	return RestartResult{WasRunning: true}, errors.New("daemon did not come back after restart")
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// Snapshot is the data the status command renders.
type Snapshot struct {
	Reachable    bool                `json:"reachable"`
	Daemon       *ipc.StatusResponse `json:"daemon,omitempty"`
	Checks       []preflight.Result  `json:"checks"`
	Dependencies []deps.Status       `json:"dependencies"`
	Summary      DependencySummary   `json:"dependency_summary"`
	EventCounts  map[string]int      `json:"event_counts,omitempty"`
}

// BuildStatusSnapshot collects daemon status and falls back to offline
// checks and journal counts when the daemon is not reachable.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, errors.New("configuration not available")
	}
	var snap Snapshot

	client, err := ipc.Dial(cfg.SocketPath())
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snap.Reachable = true
			snap.Daemon = resp
			snap.Dependencies = resp.Dependencies
		}
	}

	if len(snap.Dependencies) == 0 {
		snap.Dependencies = preflight.CheckSystemDeps(ctx, cfg)
	}
	snap.Summary = BuildDependencySummary(snap.Dependencies)
	snap.Checks = preflight.RunAll(ctx, cfg)

	if _, statErr := os.Stat(cfg.JournalPath()); statErr == nil {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if store, openErr := journal.Open(cfg); openErr == nil {
			if counts, countErr := store.Counts(queryCtx); countErr == nil {
				snap.EventCounts = counts
			}
			_ = store.Close()
		}
	}
	return snap, nil
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missing_required"`
	MissingOptional int    `json:"missing_optional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(statuses []deps.Status) DependencySummary {
	if len(statuses) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(statuses) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(statuses), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(statuses))
	}

	return DependencySummary{
		Total:           len(statuses),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

// Severity maps a dependency status to ok, warn, or error.
func Severity(st deps.Status) string {
	switch {
	case st.Available:
		return "ok"
	case st.Optional:
		return "warn"
	default:
		return "error"
	}
}
