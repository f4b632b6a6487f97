package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"sxvrs/internal/config"
	"sxvrs/internal/control"
	"sxvrs/internal/daemon"
	"sxvrs/internal/deps"
	"sxvrs/internal/fileutil"
	"sxvrs/internal/ipc"
	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/logs"
	"sxvrs/internal/notifications"
	"sxvrs/internal/preflight"
	"sxvrs/internal/staging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the sxvrs daemon runtime loop. It returns when the process is
// signaled or a client asks for shutdown. A restart request re-executes the
// current binary in place and only returns on failure.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("sxvrs-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		SessionID:        uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logs.DaemonLogName, err)
	}
	logDependencySnapshot(signalCtx, logger, cfg)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTargets(cfg, logPath)...)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := journal.Open(cfg)
	if err != nil {
		logger.Error("open event journal", logging.Error(err))
		return err
	}

	topics, err := control.NewTopics(cfg.MQTT.TopicPublish, cfg.MQTT.TopicSubscribe)
	if err != nil {
		store.Close()
		return fmt.Errorf("mqtt topics: %w", err)
	}
	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Broker:   control.NewClient(cfg, topics, logger),
		Topics:   topics,
		Journal:  store,
		Scratch:  staging.NewManager(cfg, logger),
		Notifier: notifications.NewService(cfg),
	}, logPath)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	runCtx, shutdown := context.WithCancel(signalCtx)
	defer shutdown()

	ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger, shutdown)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(runCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the broker, the config file, and that no other sxvrs daemon is running"),
			logging.String(logging.FieldImpact, "no camera is recorded until sxvrs start succeeds"),
		)
	}

	var restartSource string
	select {
	case <-runCtx.Done():
	case restartSource = <-d.RestartRequested():
	}

	if restartSource == "" {
		logger.Info("sxvrs daemon shutting down")
		return nil
	}

	logger.Info("sxvrs daemon restarting", logging.String("source", restartSource))
	ipcServer.Close()
	if err := d.Close(); err != nil {
		logger.Warn("close daemon before restart", logging.Error(err))
	}
	_ = os.Remove(pidPath)
	return reexec()
}

// reexec replaces the current process image with a fresh copy of the
// running binary. The lock, socket, and broker session are released by the
// caller first.
func reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := unix.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("re-exec %s: %w", exe, err)
	}
	return errors.New("re-exec returned without error")
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logs.DaemonLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return fileutil.WriteFileAtomic(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := preflight.CheckSystemDeps(ctx, cfg)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("ffmpeg_version", deps.ProbeVersion(ctx, cfg.FFmpegBinary())),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("api_enabled", strings.TrimSpace(cfg.API.Bind) != ""),
	}
	for _, st := range statuses {
		attrs = append(attrs, logging.Bool(strings.ToLower(st.Name)+"_available", st.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required program missing", "dependency_missing",
			logging.String("program", missing.Command),
			logging.String(logging.FieldErrorHint, "install "+missing.Command+" or fix PATH"),
			logging.String(logging.FieldImpact, missing.Description),
		)
	}
}
