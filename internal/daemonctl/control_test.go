package daemonctl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sxvrs/internal/deps"
	"sxvrs/internal/testsupport"
)

func TestBuildDependencySummary(t *testing.T) {
	tests := []struct {
		name     string
		statuses []deps.Status
		severity string
		detail   string
	}{
		{"empty", nil, "info", "No dependency checks configured"},
		{"all ok", []deps.Status{{Available: true}, {Available: true}}, "ok", "2/2 available"},
		{"optional missing", []deps.Status{{Available: true}, {Optional: true}}, "warn", "1/2 available (missing: 0 required, 1 optional)"},
		{"required missing", []deps.Status{{}, {Optional: true}}, "error", "0/2 available (missing: 1 required, 1 optional)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildDependencySummary(tc.statuses)
			if got.Severity != tc.severity || got.Detail != tc.detail {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestSeverity(t *testing.T) {
	if Severity(deps.Status{Available: true}) != "ok" {
		t.Fatal("available should be ok")
	}
	if Severity(deps.Status{Optional: true}) != "warn" {
		t.Fatal("missing optional should warn")
	}
	if Severity(deps.Status{}) != "error" {
		t.Fatal("missing required should error")
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sxvrs.pid")

	if pid, err := ReadPID(path); err != nil || pid != 0 {
		t.Fatalf("missing pid file: got %d, %v", pid, err)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, err := ReadPID(path); err != nil || pid != 4242 {
		t.Fatalf("expected 4242, got %d, %v", pid, err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected error for malformed pid file")
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sxvrs.pid")
	if _, err := ForceKillProcess(path, "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := ForceKillProcess(path, "", 0); err == nil {
		t.Fatal("expected error without a pid")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if _, err := StopAndTerminate(cfg, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	alive, pid, err := ProcessInfo(cfg.SocketPath())
	if alive || pid != 0 || err != nil {
		t.Fatalf("expected no daemon, got %v %d %v", alive, pid, err)
	}
	if err := WaitForShutdown(cfg.SocketPath(), time.Second); err != nil {
		t.Fatalf("WaitForShutdown without daemon: %v", err)
	}
}
