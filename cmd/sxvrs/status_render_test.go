package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"sxvrs/internal/daemonctl"
	"sxvrs/internal/deps"
	"sxvrs/internal/recorder"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("sxvrs", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "sxvrs:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("front", statusOK, "recording", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line with reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	statuses := []deps.Status{
		{Name: "FFmpeg", Command: "ffmpeg"},
		{Name: "sh", Command: "sh", Available: true, Path: "/bin/sh"},
		{Name: "openRTSP", Command: "openRTSP", Optional: true, Detail: "binary \"openRTSP\" not found"},
	}
	lines := dependencyLines(statuses, daemonctl.BuildDependencySummary(statuses), false)
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "Summary") || !strings.Contains(lines[0], "[ERROR]") {
		t.Fatalf("expected error summary first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] not available") {
		t.Fatalf("expected missing required program, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] Ready (/bin/sh)") {
		t.Fatalf("expected ready line with path, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "[WARN]") {
		t.Fatalf("expected optional program to warn, got %q", lines[3])
	}
	if !strings.Contains(lines[4], "FFmpeg, openRTSP") {
		t.Fatalf("expected missing program list, got %q", lines[4])
	}
}

func TestCameraKind(t *testing.T) {
	tests := []struct {
		name string
		st   recorder.Status
		want statusKind
	}{
		{"recording", recorder.Status{Phase: recorder.PhaseRecording}, statusOK},
		{"restarting", recorder.Status{Phase: recorder.PhaseRestarting}, statusWarn},
		{"backoff", recorder.Status{Phase: recorder.PhaseStopped, BackoffUntil: time.Now()}, statusWarn},
		{"failed", recorder.Status{Phase: recorder.PhaseStopped, LastError: "exit status 1"}, statusError},
		{"idle", recorder.Status{Phase: recorder.PhaseStopped}, statusInfo},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := cameraKind(tc.st); got != tc.want {
				t.Fatalf("cameraKind = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCameraSummary(t *testing.T) {
	got := cameraSummary(recorder.Status{
		Phase:      recorder.PhaseRecording,
		Watcher:    true,
		ErrorCount: 2,
		LatestFile: "/srv/rec/front/2024-05-01/front_20240501_101500.mp4",
	})
	want := "recording, watcher on, 2 errors, front_20240501_101500.mp4"
	if got != want {
		t.Fatalf("cameraSummary = %q, want %q", got, want)
	}
}

func TestRenderStatusOffline(t *testing.T) {
	cfg, _ := setupOfflineEnv(t)
	var buf bytes.Buffer
	renderStatus(&buf, cfg, daemonctl.Snapshot{
		EventCounts: map[string]int{"front": 3, "back": 1},
	}, false)
	out := buf.String()
	requireContains(t, out, "== Daemon ==", "Not running", "== Journal ==", "front", "3")
	if strings.Index(out, "back") > strings.Index(out, "front") {
		t.Fatalf("journal rows should be sorted by camera:\n%s", out)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
