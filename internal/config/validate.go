package config

import (
	"errors"
	"fmt"
	"strings"

	"sxvrs/internal/expand"
)

// Template placeholders available to each camera template.
var (
	StreamURLKeys        = []string{"ip", "name"}
	StoragePathKeys      = []string{"name", "datetime"}
	FilenameVideoKeys    = []string{"storage_path", "name", "datetime"}
	FilenameSnapshotKeys = []string{"storage_path", "name"}
	CommandKeys          = []string{"filename", "ip", "stream_url", "record_time", "name", "storage_path", "snapshot", "datetime"}
	FFmpegReadKeys       = []string{"stream_url", "ip", "name"}
	FFmpegWriteKeys      = []string{"filename", "width", "height", "pixbytes", "name", "record_time"}
	TopicKeys            = []string{"source_name"}
	ScratchCommandKeys   = []string{"size", "path"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if err := c.validateScratch(); err != nil {
		return err
	}
	if err := c.validateCameras(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be between 1 and 65535, got %d", c.MQTT.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
	}
	if err := expand.Check(c.MQTT.TopicPublish, TopicKeys...); err != nil {
		return fmt.Errorf("mqtt.topic_publish: %w", err)
	}
	if err := expand.Check(c.MQTT.TopicSubscribe, TopicKeys...); err != nil {
		return fmt.Errorf("mqtt.topic_subscribe: %w", err)
	}
	return nil
}

func (c *Config) validateScratch() error {
	if err := expand.Check(c.Scratch.MountCmd, ScratchCommandKeys...); err != nil {
		return fmt.Errorf("scratch.mount_cmd: %w", err)
	}
	if err := expand.Check(c.Scratch.UnmountCmd, ScratchCommandKeys...); err != nil {
		return fmt.Errorf("scratch.unmount_cmd: %w", err)
	}
	if c.Scratch.Mount && c.Scratch.MountCmd == "" {
		return errors.New("scratch.mount_cmd must be set when scratch.mount is true")
	}
	return nil
}

func (c *Config) validateCameras() error {
	seen := make(map[string]struct{}, len(c.Cameras))
	for i, entry := range c.Cameras {
		name := entry.Name
		if name == "" {
			return fmt.Errorf("cameras[%d].name is required", i)
		}
		if strings.ContainsAny(name, "/+#") {
			return fmt.Errorf("cameras[%d].name %q must not contain '/', '+', or '#'", i, name)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("cameras[%d].name %q is duplicated", i, name)
		}
		seen[key] = struct{}{}
	}

	_, err := c.ResolveCameras()
	return err
}

// Validate checks one resolved camera. A failing camera is reported and left
// stopped by the daemon while the remaining cameras run.
func (cam Camera) Validate() error {
	if cam.RecordTime <= 0 {
		return errors.New("record_time must be positive")
	}
	if cam.StorageMaxSize < 0 {
		return errors.New("storage_max_size must not be negative")
	}
	if cam.FrameSkip < 1 {
		return errors.New("frame_skip must be at least 1")
	}
	if cam.BufferFrames < 1 {
		return errors.New("ffmpeg_buffer_frames must be at least 1")
	}
	if cam.FrameDepth < 1 || cam.FrameDepth > 4 {
		return fmt.Errorf("frame_depth must be between 1 and 4, got %d", cam.FrameDepth)
	}
	if cam.FrameWidth < 0 || cam.FrameHeight < 0 {
		return errors.New("frame_width and frame_height must not be negative")
	}
	if cam.ThrottleLow > cam.ThrottleHigh {
		return errors.New("throttling_min_mem_size must not exceed throttling_max_mem_size")
	}
	if cam.StartErrorAttempts < 0 || cam.StartErrorThreshold < 0 || cam.StartErrorSleep < 0 {
		return errors.New("start_error settings must not be negative")
	}
	if cam.StartErrorThreshold > 0 && cam.StartErrorAttempts > 0 && cam.StartErrorThreshold > cam.StartErrorAttempts {
		return errors.New("start_error_threshold must not exceed start_error_atempt_cnt")
	}
	if strings.TrimSpace(cam.Cmd) == "" && !cam.UsesPipeline() {
		return errors.New("either cmd or both cmd_ffmpeg_read and cmd_ffmpeg_write must be set")
	}

	templates := []struct {
		field string
		value string
		keys  []string
	}{
		{"stream_url", cam.StreamURL, StreamURLKeys},
		{"storage_path", cam.StoragePath, StoragePathKeys},
		{"filename_video", cam.FilenameVideo, FilenameVideoKeys},
		{"filename_snapshot", cam.FilenameSnapshot, FilenameSnapshotKeys},
		{"cmd_before", cam.CmdBefore, CommandKeys},
		{"cmd", cam.Cmd, CommandKeys},
		{"cmd_after", cam.CmdAfter, CommandKeys},
		{"cmd_ffmpeg_read", cam.CmdFFmpegRead, FFmpegReadKeys},
		{"cmd_ffmpeg_write", cam.CmdFFmpegWrite, FFmpegWriteKeys},
	}
	for _, tmpl := range templates {
		if err := expand.Check(tmpl.value, tmpl.keys...); err != nil {
			return fmt.Errorf("%s: %w", tmpl.field, err)
		}
	}
	return nil
}
