package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sxvrs/internal/config"
	"sxvrs/internal/control"
	"sxvrs/internal/daemon"
	"sxvrs/internal/ipc"
	"sxvrs/internal/logging"
	"sxvrs/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
	baseDir    string
	logPath    string
}

// writeTestConfig writes a config with one idle camera ("front") whose
// directories all live under base.
func writeTestConfig(t *testing.T, base string) string {
	t.Helper()
	content := fmt.Sprintf(`[paths]
log_dir = %q
state_dir = %q

[scratch]
path = %q
mount = false

[api]
bind = ""

[daemon]
stop_timeout_seconds = 1

[recorder]
storage_path = %q

[[cameras]]
name = "front"
cmd = "sleep 30"
record_autostart = false
`,
		filepath.Join(base, "logs"),
		filepath.Join(base, "state"),
		filepath.Join(base, "scratch"),
		filepath.Join(base, "storage", "{name}"),
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// setupOfflineEnv returns a config path with no daemon listening.
func setupOfflineEnv(t *testing.T) (*config.Config, string) {
	t.Helper()
	base := t.TempDir()
	path := writeTestConfig(t, base)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return cfg, path
}

// setupCLITestEnv starts an in-process daemon and IPC server on the socket
// the written config points at.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg, configPath := setupOfflineEnv(t)
	topics, err := control.NewTopics(cfg.MQTT.TopicPublish, cfg.MQTT.TopicSubscribe)
	if err != nil {
		t.Fatalf("NewTopics: %v", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "sxvrs-test.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}

	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Topics:  topics,
		Journal: testsupport.MustOpenJournal(t, cfg),
	}, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger, func() {})
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		configPath: configPath,
		baseDir:    filepath.Dir(configPath),
		logPath:    logPath,
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, got)
		}
	}
}
