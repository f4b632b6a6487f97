package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/disk"
	"golang.org/x/sys/unix"

	"sxvrs/internal/config"
	"sxvrs/internal/expand"
	"sxvrs/internal/logging"
	"sxvrs/internal/services"
	"sxvrs/internal/storage"
)

// FrameExt is the extension of raw frames written to the scratch volume.
const FrameExt = ".raw"

// FrameDirName is the subdirectory of the scratch path that holds frames.
const FrameDirName = "frames"

// commandRunner executes a shell command and returns its combined output.
type commandRunner interface {
	Run(ctx context.Context, command string) ([]byte, error)
}

type shellRunner struct{}

func (shellRunner) Run(ctx context.Context, command string) ([]byte, error) {
	return exec.CommandContext(ctx, "/bin/sh", "-c", command).CombinedOutput()
}

// Usage reports scratch volume capacity and the bytes held by staged frames.
type Usage struct {
	Path        string  `json:"path"`
	Fstype      string  `json:"fstype,omitempty"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
	FrameBytes  int64   `json:"frame_bytes"`
	Mounted     bool    `json:"mounted"`
}

// Manager owns the scratch volume: it mounts it when asked to, clears frames
// left from a previous run, and reports usage for throttling.
type Manager struct {
	path       string
	sizeMB     int
	mount      bool
	mountCmd   string
	unmountCmd string
	clear      bool
	staleAge   time.Duration
	logger     *slog.Logger
	runner     commandRunner

	mu          sync.Mutex
	weMounted   bool
	cached      Usage
	cachedAt    time.Time
	cacheWindow time.Duration
}

// NewManager builds a scratch manager from configuration.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		path:        cfg.Scratch.Path,
		sizeMB:      cfg.Scratch.SizeMB,
		mount:       cfg.Scratch.Mount,
		mountCmd:    cfg.Scratch.MountCmd,
		unmountCmd:  cfg.Scratch.UnmountCmd,
		clear:       cfg.Scratch.ClearOnStartup,
		staleAge:    time.Duration(cfg.Scratch.StaleFrameSeconds) * time.Second,
		logger:      logging.NewComponentLogger(logger, "scratch"),
		runner:      shellRunner{},
		cacheWindow: time.Second,
	}
}

// Path returns the scratch volume root.
func (m *Manager) Path() string { return m.path }

// FrameDir returns the directory staged frames are written into.
func (m *Manager) FrameDir() string { return filepath.Join(m.path, FrameDirName) }

// Prepare mounts the volume if configured and it is not already a mount
// point, creates the frame directory, and clears leftovers from a previous run.
func (m *Manager) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(m.path, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "scratch", "mkdir", "Failed to create scratch path", err)
	}
	if m.mount && !IsMountPoint(m.path) {
		cmd, err := m.expandCommand(m.mountCmd)
		if err != nil {
			return err
		}
		if out, err := m.runner.Run(ctx, cmd); err != nil {
			return services.Wrap(services.ErrExternalTool, "scratch", "mount",
				fmt.Sprintf("Mount command failed: %s", strings.TrimSpace(string(out))), err)
		}
		m.mu.Lock()
		m.weMounted = true
		m.mu.Unlock()
		m.logger.Info("scratch volume mounted",
			logging.String("path", m.path),
			logging.Int("size_mb", m.sizeMB),
			logging.String(logging.FieldEventType, "scratch_mounted"),
		)
	}
	if err := os.MkdirAll(m.FrameDir(), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "scratch", "mkdir", "Failed to create frame directory", err)
	}
	if m.clear {
		Clear(ctx, m.FrameDir(), m.logger)
	}
	return nil
}

// Release unmounts the volume when Prepare mounted it.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	mounted := m.weMounted
	m.weMounted = false
	m.mu.Unlock()
	if !mounted || strings.TrimSpace(m.unmountCmd) == "" {
		return nil
	}
	cmd, err := m.expandCommand(m.unmountCmd)
	if err != nil {
		return err
	}
	if out, err := m.runner.Run(ctx, cmd); err != nil {
		return services.Wrap(services.ErrExternalTool, "scratch", "unmount",
			fmt.Sprintf("Unmount command failed: %s", strings.TrimSpace(string(out))), err)
	}
	m.logger.Info("scratch volume unmounted",
		logging.String("path", m.path),
		logging.String(logging.FieldEventType, "scratch_unmounted"),
	)
	return nil
}

// CleanStale removes frames older than the configured stale age.
func (m *Manager) CleanStale(ctx context.Context) CleanStaleResult {
	if m.staleAge <= 0 {
		return CleanStaleResult{}
	}
	return CleanStale(ctx, m.FrameDir(), m.staleAge, m.logger)
}

// Usage returns volume capacity and staged frame bytes. Results are cached
// for a short window because every camera consults it per staged frame.
func (m *Manager) Usage(ctx context.Context) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cachedAt.IsZero() && time.Since(m.cachedAt) < m.cacheWindow {
		return m.cached, nil
	}

	usage := Usage{Path: m.path, Mounted: IsMountPoint(m.path)}
	if stat, err := disk.Usage(m.path); err == nil {
		usage.Fstype = stat.Fstype
		usage.TotalBytes = stat.Total
		usage.FreeBytes = stat.Free
		usage.UsedPercent = stat.UsedPercent
	} else {
		return Usage{}, services.Wrap(services.ErrTransient, "scratch", "usage", "Failed to read volume usage", err)
	}
	frames, err := storage.DirSize(ctx, m.FrameDir())
	if err != nil {
		return Usage{}, services.Wrap(services.ErrTransient, "scratch", "usage", "Failed to size frame directory", err)
	}
	usage.FrameBytes = frames

	m.cached = usage
	m.cachedAt = time.Now()
	return usage, nil
}

func (m *Manager) expandCommand(tmpl string) (string, error) {
	out, err := expand.Expand(tmpl, expand.Vars{"size": m.sizeMB, "path": m.path})
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "scratch", "expand", "Invalid scratch command template", err)
	}
	return out, nil
}

// IsMountPoint reports whether path sits on a different device than its
// parent directory.
func IsMountPoint(path string) bool {
	var self, parent unix.Stat_t
	if err := unix.Stat(path, &self); err != nil {
		return false
	}
	if err := unix.Stat(filepath.Dir(filepath.Clean(path)), &parent); err != nil {
		return false
	}
	return self.Dev != parent.Dev || self.Ino == parent.Ino
}
