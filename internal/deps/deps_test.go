package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Empty", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for empty command: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

func TestCommandBinary(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"ffmpeg -i rtsp://{ip}/stream -f rawvideo -", "ffmpeg"},
		{"exec /usr/bin/openRTSP -v {stream_url}", "/usr/bin/openRTSP"},
		{"TZ=UTC LANG=C ffmpeg -y {filename}", "ffmpeg"},
		{"{cmd_ffmpeg_read}", ""},
		{"$HOME/bin/record", ""},
		{"", ""},
		{"  sleep 30", "sleep"},
	}
	for _, tc := range tests {
		if got := CommandBinary(tc.command); got != tc.want {
			t.Errorf("CommandBinary(%q) = %q, want %q", tc.command, got, tc.want)
		}
	}
}

func TestProbeVersion(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	script := []byte("#!/bin/sh\necho 'ffmpeg version 6.1 Copyright'\necho 'built with gcc'\n")
	if err := os.WriteFile(bin, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if got := ProbeVersion(context.Background(), bin); got != "ffmpeg version 6.1 Copyright" {
		t.Fatalf("unexpected version %q", got)
	}
	if got := ProbeVersion(context.Background(), filepath.Join(dir, "missing")); got != "" {
		t.Fatalf("expected empty version for missing binary, got %q", got)
	}
}
