package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sxvrs/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLogs := filepath.Join(tempHome, ".local", "share", "sxvrs", "logs")
	if cfg.Paths.LogDir != wantLogs {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogs)
	}
	if cfg.MQTT.Host != "127.0.0.1" || cfg.MQTT.Port != 1883 || cfg.MQTT.Keepalive != 60 {
		t.Fatalf("unexpected mqtt defaults: %+v", cfg.MQTT)
	}
	if cfg.MQTT.TopicPublish != "sxvrs/clients/{source_name}" {
		t.Fatalf("unexpected publish topic: %q", cfg.MQTT.TopicPublish)
	}
	if cfg.Scratch.Path != "/mnt/ramdisk" || cfg.Scratch.SizeMB != 128 {
		t.Fatalf("unexpected scratch defaults: %+v", cfg.Scratch)
	}
	if len(cfg.Cameras) != 0 {
		t.Fatalf("expected no cameras by default, got %d", len(cfg.Cameras))
	}
	if cfg.SocketPath() != filepath.Join(tempHome, ".local", "share", "sxvrs", "sxvrs.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}
}

func TestLoadSampleResolvesCameras(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}

	cameras, err := cfg.ResolveCameras()
	if err != nil {
		t.Fatalf("ResolveCameras: %v", err)
	}
	if len(cameras) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(cameras))
	}

	porch := cameras[0]
	if porch.Name != "porch" || porch.IP != "192.168.1.20" {
		t.Fatalf("unexpected porch camera: %+v", porch)
	}
	if porch.RecordTime != 600*time.Second {
		t.Fatalf("porch record_time = %s, want 10m", porch.RecordTime)
	}
	if porch.StorageMaxSize != 10*1024*1024*1024 {
		t.Fatalf("porch storage_max_size = %d", porch.StorageMaxSize)
	}
	if porch.FrameWidth != 1280 || porch.FrameHeight != 720 || porch.FrameDepth != 3 {
		t.Fatalf("unexpected porch frame shape: %dx%dx%d", porch.FrameWidth, porch.FrameHeight, porch.FrameDepth)
	}
	if !porch.UsesPipeline() {
		t.Fatal("expected porch to use the built-in pipeline")
	}
	if err := porch.Validate(); err != nil {
		t.Fatalf("porch Validate: %v", err)
	}

	garage := cameras[1]
	if garage.RecordTime != 300*time.Second {
		t.Fatalf("garage record_time = %s, want 5m", garage.RecordTime)
	}
	if garage.StorageMaxSize != int64(2.5*1024*1024*1024) {
		t.Fatalf("garage storage_max_size = %d", garage.StorageMaxSize)
	}
	if garage.StartErrorSleep != 600*time.Second || garage.StartErrorThreshold != 10 {
		t.Fatalf("garage start error settings not inherited: %+v", garage)
	}
}

func TestCameraOverridesRecorderDefaults(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[recorder]
record_autostart = false
frame_skip = 3
cmd_before = "echo before {name}"

[[cameras]]
name = "yard"
record_autostart = true
frame_skip = 7

[[cameras]]
name = "attic"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	yard, ok := cfg.Camera("yard")
	if !ok {
		t.Fatal("expected yard camera")
	}
	if !yard.Autostart || yard.FrameSkip != 7 {
		t.Fatalf("yard overrides not applied: autostart=%v frame_skip=%d", yard.Autostart, yard.FrameSkip)
	}
	attic, ok := cfg.Camera("attic")
	if !ok {
		t.Fatal("expected attic camera")
	}
	if attic.Autostart || attic.FrameSkip != 3 {
		t.Fatalf("attic should inherit recorder values: autostart=%v frame_skip=%d", attic.Autostart, attic.FrameSkip)
	}
	if attic.CmdBefore != "echo before {name}" {
		t.Fatalf("attic cmd_before = %q", attic.CmdBefore)
	}
	if _, ok := cfg.Camera("missing"); ok {
		t.Fatal("expected missing camera lookup to fail")
	}
}

func TestLoadLegacyYAML(t *testing.T) {
	path := writeConfig(t, "sxvrs.yaml", `
mqtt:
  server_host: 10.0.0.5
  server_port: 1884
global:
  record_time: 120
  storage_max_size: 1.5
recorders:
  yard:
    stream_url: rtsp://yard/stream
  attic:
    stream_url: rtsp://attic/stream
    record_time: 30
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	if cfg.MQTT.Host != "10.0.0.5" || cfg.MQTT.Port != 1884 {
		t.Fatalf("unexpected mqtt settings: %+v", cfg.MQTT)
	}
	cameras, err := cfg.ResolveCameras()
	if err != nil {
		t.Fatalf("ResolveCameras: %v", err)
	}
	if len(cameras) != 2 || cameras[0].Name != "attic" || cameras[1].Name != "yard" {
		t.Fatalf("expected cameras sorted by name, got %+v", cameras)
	}
	if cameras[0].RecordTime != 30*time.Second || cameras[1].RecordTime != 120*time.Second {
		t.Fatalf("unexpected record times: %s %s", cameras[0].RecordTime, cameras[1].RecordTime)
	}
	if cameras[1].StorageMaxSize != int64(1.5*1024*1024*1024) {
		t.Fatalf("unexpected storage size: %d", cameras[1].StorageMaxSize)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "duplicate camera",
			body:    "[[cameras]]\nname = \"cam\"\n[[cameras]]\nname = \"CAM\"\n",
			wantErr: "duplicated",
		},
		{
			name:    "camera name with wildcard",
			body:    "[[cameras]]\nname = \"cam/#\"\n",
			wantErr: "must not contain",
		},
		{
			name:    "log format",
			body:    "[logging]\nformat = \"xml\"\n",
			wantErr: "logging.format",
		},
		{
			name:    "mqtt port",
			body:    "[mqtt]\nport = 70000\n",
			wantErr: "mqtt.port",
		},
		{
			name:    "topic placeholder",
			body:    "[mqtt]\ntopic_publish = \"sxvrs/{camera}\"\n",
			wantErr: "mqtt.topic_publish",
		},
		{
			name:    "unknown key",
			body:    "[mqtt]\nbroker = \"x\"\n",
			wantErr: "parse config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.toml", tt.body)
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestCameraValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Cameras = []config.CameraEntry{{Name: "porch"}}
	cameras, err := cfg.ResolveCameras()
	if err != nil {
		t.Fatalf("ResolveCameras: %v", err)
	}
	base := cameras[0]
	if err := base.Validate(); err != nil {
		t.Fatalf("default camera should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Camera)
	}{
		{"zero record time", func(c *config.Camera) { c.RecordTime = 0 }},
		{"zero frame skip", func(c *config.Camera) { c.FrameSkip = 0 }},
		{"bad depth", func(c *config.Camera) { c.FrameDepth = 9 }},
		{"inverted watermarks", func(c *config.Camera) { c.ThrottleLow, c.ThrottleHigh = 10, 5 }},
		{"unknown placeholder", func(c *config.Camera) { c.FilenameVideo = "{storage_path}/{camera}.mp4" }},
		{"no main command", func(c *config.Camera) { c.CmdFFmpegWrite = "" }},
		{"threshold above attempts", func(c *config.Camera) { c.StartErrorThreshold, c.StartErrorAttempts = 5, 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := base
			tt.mutate(&cam)
			if err := cam.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
