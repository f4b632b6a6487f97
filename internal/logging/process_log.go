package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"sxvrs/internal/config"
)

// ProcessLogOptions controls rotation of the per-camera logs that capture
// stdout/stderr of recording commands.
type ProcessLogOptions struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ProcessLogOptionsFromConfig derives process log rotation settings.
func ProcessLogOptionsFromConfig(cfg *config.Config) ProcessLogOptions {
	if cfg == nil {
		return ProcessLogOptions{}
	}
	return ProcessLogOptions{
		Dir:        filepath.Join(cfg.Paths.LogDir, "cameras"),
		MaxSizeMB:  cfg.Logging.ProcessLogMaxMB,
		MaxBackups: cfg.Logging.ProcessLogMaxBackups,
		MaxAgeDays: cfg.Logging.ProcessLogMaxAgeDays,
		Compress:   cfg.Logging.ProcessLogCompress,
	}
}

// ProcessLog is a rotating log file shared by every command a camera runs.
// Section headers separate the output of individual steps.
type ProcessLog struct {
	mu     sync.Mutex
	writer io.WriteCloser
	path   string
}

// ProcessLogPath is the active process log of camera inside dir.
func ProcessLogPath(dir, camera string) string {
	return filepath.Join(dir, camera+".log")
}

// OpenProcessLog returns the rotating log for camera. An empty Dir yields a
// log that discards everything.
func OpenProcessLog(opts ProcessLogOptions, camera string) *ProcessLog {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return &ProcessLog{writer: nopWriteCloser{io.Discard}}
	}
	path := ProcessLogPath(dir, camera)
	return &ProcessLog{
		path: path,
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  true,
		},
	}
}

// Path returns the current log file path, or "" for a discarding log.
func (p *ProcessLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Section writes a header line announcing the output that follows.
func (p *ProcessLog) Section(step, command string) {
	if p == nil {
		return
	}
	line := fmt.Sprintf("=== %s %s: %s\n", time.Now().Format(timestampLayout), step, command)
	_, _ = p.Write([]byte(line))
}

func (p *ProcessLog) Write(b []byte) (int, error) {
	if p == nil {
		return len(b), nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Write(b)
}

func (p *ProcessLog) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Close()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
