package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sxvrs/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)

	result := CheckBroker(context.Background(), "127.0.0.1", addr.Port)
	if !result.Passed {
		t.Fatalf("expected broker reachable, got: %s", result.Detail)
	}

	ln.Close()
	result = CheckBroker(context.Background(), "127.0.0.1", addr.Port)
	if result.Passed {
		t.Fatal("expected failure after listener closed")
	}
}

func TestCheckBrokerInvalidSettings(t *testing.T) {
	if r := CheckBroker(context.Background(), "", 1883); r.Passed || r.Detail != "missing host" {
		t.Fatalf("unexpected result for empty host: %#v", r)
	}
	if r := CheckBroker(context.Background(), "localhost", 0); r.Passed {
		t.Fatalf("expected failure for port 0: %#v", r)
	}
}

func TestStaticRoot(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"storage/{name}", "storage"},
		{"/srv/rec/cam_{name}/video", "/srv/rec"},
		{"/srv/rec/{name}/{datetime:%Y%m%d}", "/srv/rec"},
		{"/srv/rec/porch", "/srv/rec/porch"},
		{"{name}", "."},
	}
	for _, tc := range tests {
		if got := StaticRoot(tc.template); got != tc.want {
			t.Errorf("StaticRoot(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}

func TestCheckStorageGroupsSharedRoots(t *testing.T) {
	dir := t.TempDir()
	cameras := []config.Camera{
		{Name: "front", StoragePath: filepath.Join(dir, "{name}"), StorageMaxSize: 1 << 30},
		{Name: "back", StoragePath: filepath.Join(dir, "{name}"), StorageMaxSize: 1 << 30},
		{Name: "porch", StoragePath: filepath.Join(dir, "porch", "missing", "{name}")},
	}
	results := CheckStorage(cameras)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %#v", results)
	}
	if results[0].Name != "Storage front, back" || !results[0].Passed {
		t.Fatalf("unexpected shared root result: %#v", results[0])
	}
	if !strings.Contains(results[0].Detail, "quota 2.0 GiB") {
		t.Fatalf("expected combined quota in detail, got %q", results[0].Detail)
	}
	if !results[1].Passed {
		t.Fatalf("missing directories should be probed through an existing ancestor: %#v", results[1])
	}
}

func TestCheckSystemDepsIncludesCameraPrograms(t *testing.T) {
	cfg := config.Default()
	cfg.Cameras = []config.CameraEntry{
		{Name: "front", CameraSettings: config.CameraSettings{Cmd: "openRTSP -v {stream_url}", CmdAfter: "sh -c true"}},
		{Name: "back", CameraSettings: config.CameraSettings{Cmd: "openRTSP -v {stream_url}"}},
	}

	statuses := CheckSystemDeps(context.Background(), &cfg)
	var names []string
	for _, st := range statuses {
		names = append(names, st.Name)
	}
	joined := strings.Join(names, ",")
	if joined != "sh,FFmpeg,FFprobe,openRTSP" {
		t.Fatalf("unexpected dependency list %q", joined)
	}
	last := statuses[len(statuses)-1]
	if !last.Optional || last.Description != "Used by camera front" {
		t.Fatalf("unexpected camera dependency: %#v", last)
	}
}

func TestFailed(t *testing.T) {
	results := []Result{{Name: "a", Passed: true}, {Name: "b"}}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "b" {
		t.Fatalf("unexpected failed list: %#v", failed)
	}
}
