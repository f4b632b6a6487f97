package config

import (
	"fmt"
	"strings"
	"time"
)

// CameraSettings holds recorder parameters shared by the [recorder] defaults
// section and every [[cameras]] entry. Unset values inherit from [recorder].
type CameraSettings struct {
	IP               string   `toml:"ip,omitempty" yaml:"ip"`
	StreamURL        string   `toml:"stream_url,omitempty" yaml:"stream_url"`
	Autostart        *bool    `toml:"record_autostart,omitempty" yaml:"record_autostart"`
	Watcher          *bool    `toml:"watcher_autostart,omitempty" yaml:"watcher_autostart"`
	RecordTime       *int     `toml:"record_time,omitempty" yaml:"record_time"`
	StorageMaxSizeGB *float64 `toml:"storage_max_size,omitempty" yaml:"storage_max_size"`
	StoragePath      string   `toml:"storage_path,omitempty" yaml:"storage_path"`
	FilenameVideo    string   `toml:"filename_video,omitempty" yaml:"filename_video"`
	FilenameSnapshot string   `toml:"filename_snapshot,omitempty" yaml:"filename_snapshot"`
	CmdBefore        string   `toml:"cmd_before,omitempty" yaml:"cmd_before"`
	Cmd              string   `toml:"cmd,omitempty" yaml:"cmd"`
	CmdAfter         string   `toml:"cmd_after,omitempty" yaml:"cmd_after"`
	CmdFFmpegRead    string   `toml:"cmd_ffmpeg_read,omitempty" yaml:"cmd_ffmpeg_read"`
	CmdFFmpegWrite   string   `toml:"cmd_ffmpeg_write,omitempty" yaml:"cmd_ffmpeg_write"`

	FrameWidth         *int `toml:"frame_width,omitempty" yaml:"frame_width"`
	FrameHeight        *int `toml:"frame_height,omitempty" yaml:"frame_height"`
	FrameDepth         *int `toml:"frame_depth,omitempty" yaml:"frame_dim"`
	FFmpegBufferFrames *int `toml:"ffmpeg_buffer_frames,omitempty" yaml:"ffmpeg_buffer_frames"`
	FrameSkip          *int `toml:"frame_skip,omitempty" yaml:"frame_skip"`
	ThrottleMinMB      *int `toml:"throttling_min_mem_size,omitempty" yaml:"throttling_min_mem_size"`
	ThrottleMaxMB      *int `toml:"throttling_max_mem_size,omitempty" yaml:"throttling_max_mem_size"`

	StartErrorAttempts  *int `toml:"start_error_atempt_cnt,omitempty" yaml:"start_error_atempt_cnt"`
	StartErrorThreshold *int `toml:"start_error_threshold,omitempty" yaml:"start_error_threshold"`
	StartErrorSleep     *int `toml:"start_error_sleep,omitempty" yaml:"start_error_sleep"`
}

// CameraEntry is one [[cameras]] table.
type CameraEntry struct {
	Name           string `toml:"name" yaml:"name"`
	CameraSettings `yaml:",inline"`
}

// Camera is the fully resolved, immutable configuration of one camera. Path,
// filename, and command fields are still templates; they are expanded per
// recording cycle because they reference the cycle's timestamp.
type Camera struct {
	Name      string
	IP        string
	StreamURL string
	Autostart bool
	Watcher   bool

	RecordTime     time.Duration
	StorageMaxSize int64

	StoragePath      string
	FilenameVideo    string
	FilenameSnapshot string

	CmdBefore      string
	Cmd            string
	CmdAfter       string
	CmdFFmpegRead  string
	CmdFFmpegWrite string

	FrameWidth   int
	FrameHeight  int
	FrameDepth   int
	BufferFrames int
	FrameSkip    int
	ThrottleLow  int64
	ThrottleHigh int64

	StartErrorAttempts  int
	StartErrorThreshold int
	StartErrorSleep     time.Duration
}

// UsesPipeline reports whether the main step is the built-in decode/encode
// pipeline rather than an arbitrary shell command.
func (c Camera) UsesPipeline() bool {
	return strings.TrimSpace(c.Cmd) == "" &&
		strings.TrimSpace(c.CmdFFmpegRead) != "" &&
		strings.TrimSpace(c.CmdFFmpegWrite) != ""
}

// ResolveCameras merges each camera entry with the [recorder] defaults.
func (c *Config) ResolveCameras() ([]Camera, error) {
	cameras := make([]Camera, 0, len(c.Cameras))
	for i, entry := range c.Cameras {
		cam, err := resolveCamera(entry, c.Recorder)
		if err != nil {
			return nil, fmt.Errorf("cameras[%d]: %w", i, err)
		}
		cameras = append(cameras, cam)
	}
	return cameras, nil
}

// Camera returns the resolved configuration of the named camera.
func (c *Config) Camera(name string) (Camera, bool) {
	for _, entry := range c.Cameras {
		if entry.Name != name {
			continue
		}
		cam, err := resolveCamera(entry, c.Recorder)
		if err != nil {
			return Camera{}, false
		}
		return cam, true
	}
	return Camera{}, false
}

func resolveCamera(entry CameraEntry, global CameraSettings) (Camera, error) {
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return Camera{}, fmt.Errorf("name is required")
	}
	local := entry.CameraSettings
	gb := pick(local.StorageMaxSizeGB, global.StorageMaxSizeGB, defaultStorageMaxSizeGB)
	return Camera{
		Name:      name,
		IP:        pickString(local.IP, global.IP, ""),
		StreamURL: pickString(local.StreamURL, global.StreamURL, ""),
		Autostart: pick(local.Autostart, global.Autostart, defaultRecordAutostart),
		Watcher:   pick(local.Watcher, global.Watcher, defaultWatcherAutostart),

		RecordTime:     time.Duration(pick(local.RecordTime, global.RecordTime, defaultRecordTime)) * time.Second,
		StorageMaxSize: int64(gb * bytesPerGB),

		StoragePath:      pickString(local.StoragePath, global.StoragePath, defaultStoragePath),
		FilenameVideo:    pickString(local.FilenameVideo, global.FilenameVideo, defaultFilenameVideo),
		FilenameSnapshot: pickString(local.FilenameSnapshot, global.FilenameSnapshot, defaultFilenameSnapshot),

		CmdBefore:      pickString(local.CmdBefore, global.CmdBefore, ""),
		Cmd:            pickString(local.Cmd, global.Cmd, ""),
		CmdAfter:       pickString(local.CmdAfter, global.CmdAfter, ""),
		CmdFFmpegRead:  pickString(local.CmdFFmpegRead, global.CmdFFmpegRead, defaultCmdFFmpegRead),
		CmdFFmpegWrite: pickString(local.CmdFFmpegWrite, global.CmdFFmpegWrite, defaultCmdFFmpegWrite),

		FrameWidth:   pick(local.FrameWidth, global.FrameWidth, 0),
		FrameHeight:  pick(local.FrameHeight, global.FrameHeight, 0),
		FrameDepth:   pick(local.FrameDepth, global.FrameDepth, defaultFrameDepth),
		BufferFrames: pick(local.FFmpegBufferFrames, global.FFmpegBufferFrames, defaultFFmpegBufferFrames),
		FrameSkip:    pick(local.FrameSkip, global.FrameSkip, defaultFrameSkip),
		ThrottleLow:  int64(pick(local.ThrottleMinMB, global.ThrottleMinMB, defaultThrottleMinMB)) * bytesPerMB,
		ThrottleHigh: int64(pick(local.ThrottleMaxMB, global.ThrottleMaxMB, defaultThrottleMaxMB)) * bytesPerMB,

		StartErrorAttempts:  pick(local.StartErrorAttempts, global.StartErrorAttempts, defaultStartErrorAttempts),
		StartErrorThreshold: pick(local.StartErrorThreshold, global.StartErrorThreshold, defaultStartErrorThreshold),
		StartErrorSleep:     time.Duration(pick(local.StartErrorSleep, global.StartErrorSleep, defaultStartErrorSleep)) * time.Second,
	}, nil
}

func pick[T any](local, global *T, fallback T) T {
	if local != nil {
		return *local
	}
	if global != nil {
		return *global
	}
	return fallback
}

func pickString(local, global, fallback string) string {
	if v := strings.TrimSpace(local); v != "" {
		return v
	}
	if v := strings.TrimSpace(global); v != "" {
		return v
	}
	return fallback
}
