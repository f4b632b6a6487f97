package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sxvrs/internal/config"
	"sxvrs/internal/logging"
)

const (
	// DaemonLogName is the stable pointer to the current daemon run log.
	DaemonLogName = "sxvrs.log"

	pollInterval = 250 * time.Millisecond
	readBlock    = 8 * 1024
)

// TailOptions selects which part of a log to return. A negative Offset means
// "the last Limit lines"; otherwise reading resumes at Offset. Follow waits up
// to Wait for new lines when none are available yet.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries complete lines and the offset to resume from. Rotated is
// set when the file shrank below the requested offset and reading restarted
// at the beginning.
type TailResult struct {
	Lines   []string
	Offset  int64
	Rotated bool
}

// Path returns the log file for camera, or the daemon log when camera is empty.
func Path(cfg *config.Config, camera string) string {
	camera = strings.TrimSpace(camera)
	if camera == "" {
		return filepath.Join(cfg.Paths.LogDir, DaemonLogName)
	}
	return logging.ProcessLogPath(logging.ProcessLogOptionsFromConfig(cfg).Dir, camera)
}

// Tail reads lines from path. A missing file yields an empty result.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	opts.Wait = max(opts.Wait, 0)

	if opts.Offset < 0 {
		lines, err := lastLines(path, info.Size(), opts.Limit)
		if err != nil {
			return result, err
		}
		result.Lines = lines
		result.Offset = info.Size()
		if opts.Follow && len(lines) == 0 {
			return waitForLines(ctx, path, result.Offset, opts.Wait)
		}
		return result, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		offset = 0
		result.Rotated = true
	}
	lines, next, err := readForward(path, offset)
	if err != nil {
		return result, err
	}
	result.Lines = lines
	result.Offset = next
	if opts.Follow && len(lines) == 0 {
		waited, err := waitForLines(ctx, path, next, opts.Wait)
		waited.Rotated = waited.Rotated || result.Rotated
		return waited, err
	}
	return result, nil
}

// Follow prints the last limit lines of path through emit and keeps emitting
// new lines until ctx is canceled.
func Follow(ctx context.Context, path string, limit int, emit func(string)) error {
	res, err := Tail(ctx, path, TailOptions{Offset: -1, Limit: limit})
	if err != nil {
		return err
	}
	for {
		for _, line := range res.Lines {
			emit(line)
		}
		res, err = Tail(ctx, path, TailOptions{Offset: res.Offset, Follow: true, Wait: time.Second})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// lastLines reads backwards in blocks until limit complete lines are buffered.
func lastLines(path string, size int64, limit int) ([]string, error) {
	if limit <= 0 || size == 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var buf []byte
	pos := size
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) <= limit {
		n := min(int64(readBlock), pos)
		pos -= n
		chunk := make([]byte, n)
		if _, err := file.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log file: %w", err)
		}
		buf = append(chunk, buf...)
	}

	text := strings.TrimSuffix(string(buf), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines, nil
}

// readForward returns complete lines after offset. A trailing partial line is
// left for the next call.
func readForward(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	return lines, offset, nil
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		if info, err := os.Stat(path); err == nil && info.Size() < offset {
			offset = 0
			result.Rotated = true
		}
		lines, next, err := readForward(path, offset)
		if err != nil {
			return result, err
		}
		result.Offset = next
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if !time.Now().Before(deadline) {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
