package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sxvrs/internal/config"
	"sxvrs/internal/logging"
	"sxvrs/internal/services"
)

func newFileLogger(t *testing.T, format string) (func() string, logging.Options) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	opts := logging.Options{
		Level:            "debug",
		Format:           format,
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
	}
	read := func() string {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		return string(data)
	}
	return read, opts
}

func TestConsoleHandlerPrefixesComponentAndCamera(t *testing.T) {
	read, opts := newFileLogger(t, "console")
	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	camLogger := logging.NewCameraLogger(logger, "recorder", "porch")
	camLogger.Info("recording started", logging.Int("iteration", 3), logging.String("file", "a b.mp4"))

	out := read()
	if !strings.Contains(out, "INFO  recorder[porch]: recording started") {
		t.Fatalf("missing prefix in %q", out)
	}
	if !strings.Contains(out, "iteration=3") {
		t.Fatalf("missing iteration in %q", out)
	}
	if !strings.Contains(out, `file="a b.mp4"`) {
		t.Fatalf("expected quoted value in %q", out)
	}
	if strings.Contains(out, "camera=") || strings.Contains(out, "component=") {
		t.Fatalf("prefix fields should not repeat as pairs: %q", out)
	}
}

func TestJSONHandlerUsesStableKeys(t *testing.T) {
	read, opts := newFileLogger(t, "json")
	opts.Level = "info"
	opts.SessionID = "run-1"
	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logging.WarnWithContext(logger, "broker unreachable", "mqtt_connect_failed")
	logger.Debug("dropped")

	lines := strings.Split(strings.TrimSpace(read()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), lines)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	for key, want := range map[string]string{
		"level":                "warn",
		"msg":                  "broker unreachable",
		logging.FieldEventType: "mqtt_connect_failed",
		logging.FieldSessionID: "run-1",
		logging.FieldErrorHint: "check logs for details",
		logging.FieldImpact:    "operation completed with warnings",
	} {
		if got, _ := record[key].(string); got != want {
			t.Fatalf("%s = %q, want %q", key, got, want)
		}
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextAddsCameraFields(t *testing.T) {
	read, opts := newFileLogger(t, "console")
	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := services.WithIteration(services.WithCamera(context.Background(), "garage"), 7)
	logging.WithContext(ctx, logger).Info("cycle")

	out := read()
	if !strings.Contains(out, "[garage]: cycle") || !strings.Contains(out, "iteration=7") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "sxvrs-old.log")
	current := filepath.Join(dir, "sxvrs-current.log")
	fresh := filepath.Join(dir, "sxvrs-fresh.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, current, fresh, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{old, current, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3,
		logging.RetentionTarget{Dir: dir, Pattern: "sxvrs-*.log", Exclude: []string{current}},
	)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{current, fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}

	if got := logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir}); got != 0 {
		t.Fatalf("disabled retention removed %d files", got)
	}
}

func TestRetentionTargetsCoverCameraLogs(t *testing.T) {
	dir := t.TempDir()
	camDir := filepath.Join(dir, "cameras")
	if err := os.MkdirAll(camDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfg := config.Default()
	cfg.Paths.LogDir = dir
	cfg.Cameras = []config.CameraEntry{{Name: "front"}}

	current := filepath.Join(dir, "sxvrs-current.log")
	oldRun := filepath.Join(dir, "sxvrs-old.log")
	active := filepath.Join(camDir, "front.log")
	backup := filepath.Join(camDir, "front-2024-05-01T10-00-00.000.log")
	orphan := filepath.Join(camDir, "gone.log")
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{current, oldRun, active, backup, orphan} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTargets(&cfg, current)...)
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	for _, path := range []string{oldRun, backup, orphan} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err=%v", path, err)
		}
	}
	for _, path := range []string{current, active} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
	if got := logging.ProcessLogPath(camDir, "front"); got != active {
		t.Fatalf("ProcessLogPath = %q", got)
	}
}

func TestProcessLogWritesSections(t *testing.T) {
	dir := t.TempDir()
	plog := logging.OpenProcessLog(logging.ProcessLogOptions{Dir: dir, MaxSizeMB: 1}, "porch")
	plog.Section("cmd_before", "echo hi")
	if _, err := plog.Write([]byte("hi\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := plog.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if plog.Path() != filepath.Join(dir, "porch.log") {
		t.Fatalf("unexpected path %q", plog.Path())
	}
	data, err := os.ReadFile(plog.Path())
	if err != nil {
		t.Fatalf("read process log: %v", err)
	}
	if !strings.Contains(string(data), "cmd_before: echo hi\nhi\n") {
		t.Fatalf("unexpected process log %q", data)
	}

	discard := logging.OpenProcessLog(logging.ProcessLogOptions{}, "porch")
	if _, err := discard.Write([]byte("ignored")); err != nil {
		t.Fatalf("discard write: %v", err)
	}
	if discard.Path() != "" {
		t.Fatalf("discarding log should have no path, got %q", discard.Path())
	}
}

func TestNewFromConfigLevelOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "warn"

	logger, err := logging.NewFromConfig(&cfg, "")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("configured warn level should suppress info")
	}

	logger, err = logging.NewFromConfig(&cfg, "debug")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("level override should enable debug")
	}
}
