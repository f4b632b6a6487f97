package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sxvrs/internal/config"
	"sxvrs/internal/control"
	"sxvrs/internal/daemon"
	"sxvrs/internal/ipc"
	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/testsupport"
)

type harness struct {
	cfg      *config.Config
	daemon   *daemon.Daemon
	client   *ipc.Client
	logPath  string
	shutdown chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithCamera("front", config.CameraSettings{
			Autostart: testsupport.Ptr(false),
			Cmd:       "sleep 30",
		}),
	)
	cfg.API.Bind = ""
	cfg.Daemon.StopTimeoutSeconds = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	topics, err := control.NewTopics(cfg.MQTT.TopicPublish, cfg.MQTT.TopicSubscribe)
	if err != nil {
		t.Fatalf("NewTopics: %v", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "ipc-test.log")
	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Topics:  topics,
		Journal: testsupport.MustOpenJournal(t, cfg),
	}, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	shutdown := make(chan struct{})
	socket := filepath.Join(cfg.Paths.LogDir, "sxvrs.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger, func() { close(shutdown) })
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return &harness{cfg: cfg, daemon: d, client: client, logPath: logPath, shutdown: shutdown}
}

func TestIPCStartStatusStop(t *testing.T) {
	h := newHarness(t)

	startResp, err := h.client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	again, err := h.client.Start()
	if err != nil {
		t.Fatalf("second Start RPC failed: %v", err)
	}
	if again.Started || again.Message == "" {
		t.Fatalf("expected second start to be refused with a message, got %#v", again)
	}

	status, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.LockFilePath != h.cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if len(status.Cameras) != 1 || status.Cameras[0].Name != "front" {
		t.Fatalf("unexpected cameras: %+v", status.Cameras)
	}

	stopResp, err := h.client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}
	status, err = h.client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestIPCCameraCommands(t *testing.T) {
	h := newHarness(t)
	if _, err := h.client.Start(); err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}

	list, err := h.client.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list.Cameras) != 1 || list.Cameras[0].Name != "front" {
		t.Fatalf("unexpected list: %+v", list)
	}

	watch, err := h.client.WatcherStart("front")
	if err != nil {
		t.Fatalf("WatcherStart failed: %v", err)
	}
	if !watch.Camera.Watcher {
		t.Fatal("expected watcher to be enabled")
	}
	watch, err = h.client.WatcherStop("front")
	if err != nil {
		t.Fatalf("WatcherStop failed: %v", err)
	}
	if watch.Camera.Watcher {
		t.Fatal("expected watcher to be disabled")
	}

	if _, err := h.client.RecordStop("front"); err != nil {
		t.Fatalf("RecordStop failed: %v", err)
	}
	if _, err := h.client.Camera("missing"); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected unknown camera error, got %v", err)
	}

	events, err := h.client.History(ipc.HistoryRequest{Camera: "front", Kind: string(journal.KindCycleStarted)})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events.Events) != 0 {
		t.Fatalf("expected no cycles for an idle camera, got %+v", events.Events)
	}
}

func TestIPCReap(t *testing.T) {
	h := newHarness(t)
	if _, err := h.client.Start(); err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}

	root := filepath.Join(testsupport.BaseDir(h.cfg), "storage", "front")
	now := time.Now()
	testsupport.WriteFileAt(t, filepath.Join(root, "a.mp4"), 16, now.Add(-time.Hour))
	testsupport.WriteFileAt(t, filepath.Join(root, "b.mp4"), 16, now)

	resp, err := h.client.Reap("front")
	if err != nil {
		t.Fatalf("Reap failed: %v", err)
	}
	if resp.Root != root {
		t.Fatalf("unexpected reap root %q, want %q", resp.Root, root)
	}
	if resp.Kept != 2 || len(resp.Deleted) != 0 {
		t.Fatalf("expected both files kept under the default quota, got %+v", resp)
	}
}

func TestIPCLogTail(t *testing.T) {
	h := newHarness(t)
	if err := os.WriteFile(h.logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	logResp, err := h.client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		defer close(followDone)
		resp, err := h.client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 2000})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(h.logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("append log: %v", err)
	}
	_, _ = f.WriteString("fourth\n")
	_ = f.Close()

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}
}

func TestIPCCameraLogTail(t *testing.T) {
	h := newHarness(t)
	if _, err := h.client.Start(); err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	camLog := filepath.Join(h.cfg.Paths.LogDir, "cameras", "front.log")
	if err := os.MkdirAll(filepath.Dir(camLog), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(camLog, []byte("ffmpeg started\n"), 0o644); err != nil {
		t.Fatalf("write camera log: %v", err)
	}

	resp, err := h.client.LogTail(ipc.LogTailRequest{Camera: "FRONT", Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("LogTail camera failed: %v", err)
	}
	if resp.Path != camLog {
		t.Fatalf("unexpected log path %q", resp.Path)
	}
	if len(resp.Lines) != 1 || resp.Lines[0] != "ffmpeg started" {
		t.Fatalf("unexpected camera log lines: %#v", resp.Lines)
	}
}

func TestIPCShutdownAndRestart(t *testing.T) {
	h := newHarness(t)

	notify, err := h.client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notify.Sent || notify.Message == "" {
		t.Fatalf("expected unsent notification with a reason, got %#v", notify)
	}

	restart, err := h.client.Restart()
	if err != nil || !restart.Accepted {
		t.Fatalf("Restart failed: %#v, %v", restart, err)
	}
	select {
	case source := <-h.daemon.RestartRequested():
		if source != "ipc" {
			t.Fatalf("unexpected restart source %q", source)
		}
	case <-time.After(time.Second):
		t.Fatal("restart request not delivered")
	}

	resp, err := h.client.Shutdown()
	if err != nil || !resp.Accepted {
		t.Fatalf("Shutdown failed: %#v, %v", resp, err)
	}
	select {
	case <-h.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}
