package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"sxvrs/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for daemon state.
type Paths struct {
	LogDir   string `toml:"log_dir" yaml:"log_dir"`
	StateDir string `toml:"state_dir" yaml:"state_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format               string `toml:"format" yaml:"format"`
	Level                string `toml:"level" yaml:"level"`
	RetentionDays        int    `toml:"retention_days" yaml:"retention_days"`
	ProcessLogMaxMB      int    `toml:"process_log_max_mb" yaml:"process_log_max_mb"`
	ProcessLogMaxBackups int    `toml:"process_log_max_backups" yaml:"process_log_max_backups"`
	ProcessLogMaxAgeDays int    `toml:"process_log_max_age_days" yaml:"process_log_max_age_days"`
	ProcessLogCompress   bool   `toml:"process_log_compress" yaml:"process_log_compress"`
}

// MQTT contains the control-plane broker connection settings.
type MQTT struct {
	Host                  string `toml:"host" yaml:"server_host"`
	Port                  int    `toml:"port" yaml:"server_port"`
	Keepalive             int    `toml:"keepalive" yaml:"server_keepalive"`
	ClientID              string `toml:"client_id" yaml:"name"`
	Username              string `toml:"username" yaml:"login"`
	Password              string `toml:"password" yaml:"pwd"`
	TopicPublish          string `toml:"topic_publish" yaml:"topic_publish"`
	TopicSubscribe        string `toml:"topic_subscribe" yaml:"topic_subscribe"`
	QoS                   int    `toml:"qos" yaml:"qos"`
	ConnectRetrySeconds   int    `toml:"connect_retry_seconds" yaml:"connect_retry_seconds"`
	PublishTimeoutSeconds int    `toml:"publish_timeout_seconds" yaml:"publish_timeout_seconds"`
}

// Scratch contains settings for the RAM-backed frame staging volume.
type Scratch struct {
	Path              string `toml:"path" yaml:"path"`
	SizeMB            int    `toml:"size_mb" yaml:"size"`
	Mount             bool   `toml:"mount" yaml:"mount"`
	MountCmd          string `toml:"mount_cmd" yaml:"cmd_mount"`
	UnmountCmd        string `toml:"unmount_cmd" yaml:"cmd_unmount"`
	ClearOnStartup    bool   `toml:"clear_on_startup" yaml:"clear_on_startup"`
	StaleFrameSeconds int    `toml:"stale_frame_seconds" yaml:"stale_frame_seconds"`
}

// Daemon contains supervisor timing settings.
type Daemon struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	StopTimeoutSeconds  int `toml:"stop_timeout_seconds" yaml:"stop_timeout_seconds"`
	KillGraceSeconds    int `toml:"kill_grace_seconds" yaml:"kill_grace_seconds"`
}

// API contains the HTTP status server settings.
type API struct {
	Bind  string `toml:"bind" yaml:"bind"`
	Token string `toml:"token" yaml:"token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" yaml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout" yaml:"request_timeout"`
	Backoff        bool   `toml:"backoff" yaml:"backoff"`
	Restart        bool   `toml:"restart" yaml:"restart"`
}

// Config encapsulates all configuration values for the recording daemon.
//
// Configuration sections by subsystem:
//   - Paths: log and state directories
//   - Logging: log format, level, retention, and per-camera process logs
//   - MQTT: control-plane broker and topic templates
//   - Scratch: frame staging volume and its mount commands
//   - Daemon: supervisor poll and shutdown timing
//   - API: HTTP status server bind address
//   - Notifications: ntfy push notification settings
//   - Recorder: defaults applied to every camera
//   - Cameras: per-camera entries that override Recorder values
type Config struct {
	Paths         Paths          `toml:"paths" yaml:"paths"`
	Logging       Logging        `toml:"logging" yaml:"logging"`
	MQTT          MQTT           `toml:"mqtt" yaml:"mqtt"`
	Scratch       Scratch        `toml:"scratch" yaml:"temp_storage"`
	Daemon        Daemon         `toml:"daemon" yaml:"daemon"`
	API           API            `toml:"api" yaml:"api"`
	Notifications Notifications  `toml:"notifications" yaml:"notifications"`
	Recorder      CameraSettings `toml:"recorder" yaml:"global"`
	Cameras       []CameraEntry  `toml:"cameras" yaml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sxvrs/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Files ending in .yaml or .yml are read with the
// legacy layout (a "global" section plus a "recorders" map).
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if isYAML(resolvedPath) {
			err = decodeYAML(file, &cfg)
		} else {
			err = toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg)
		}
		if err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// legacyFile mirrors the YAML layout where cameras are keyed by name.
type legacyFile struct {
	Config    `yaml:",inline"`
	Recorders map[string]CameraSettings `yaml:"recorders"`
}

func decodeYAML(r io.Reader, cfg *Config) error {
	doc := legacyFile{Config: *cfg}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	*cfg = doc.Config
	names := slices.Sorted(maps.Keys(doc.Recorders))
	for _, name := range names {
		cfg.Cameras = append(cfg.Cameras, CameraEntry{Name: name, CameraSettings: doc.Recorders[name]})
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sxvrs.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "sxvrs.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "sxvrs.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "sxvrs.pid")
}

// JournalPath returns the SQLite event journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// FFmpegBinary returns the ffmpeg executable name used for snapshots.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used to probe frame shapes.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the commented sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
