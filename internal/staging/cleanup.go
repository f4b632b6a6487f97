package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sxvrs/internal/logging"
)

// CleanStaleResult contains the outcome of a frame cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes staged frames older than maxAge from frameDir. Frames
// are normally consumed by an external detector; anything it left behind is
// collected here so the scratch volume does not fill up.
func CleanStale(ctx context.Context, frameDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	cutoff := time.Now().Add(-maxAge)
	return removeFrames(ctx, frameDir, logger, func(info os.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	})
}

// Clear removes every staged frame regardless of age.
func Clear(ctx context.Context, frameDir string, logger *slog.Logger) CleanStaleResult {
	return removeFrames(ctx, frameDir, logger, func(os.FileInfo) bool { return true })
}

func removeFrames(ctx context.Context, frameDir string, logger *slog.Logger, match func(os.FileInfo) bool) CleanStaleResult {
	result := CleanStaleResult{}

	frameDir = strings.TrimSpace(frameDir)
	if frameDir == "" {
		return result
	}

	entries, err := os.ReadDir(frameDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: frameDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FrameExt) {
			continue
		}
		framePath := filepath.Join(frameDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			if !os.IsNotExist(err) {
				result.Errors = append(result.Errors, CleanupError{Path: framePath, Error: err})
			}
			continue
		}
		if !match(info) {
			continue
		}
		if err := os.Remove(framePath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			result.Errors = append(result.Errors, CleanupError{Path: framePath, Error: err})
			logging.WarnWithContext(logger, "failed to remove staged frame", "staging_cleanup_failed",
				logging.String("path", framePath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check scratch.path permissions"),
				logging.String(logging.FieldImpact, "scratch space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, framePath)
	}

	if len(result.Removed) > 0 && logger != nil {
		logger.Info("removed staged frames",
			logging.Int("count", len(result.Removed)),
			logging.String("dir", frameDir),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

// LatestFrame returns the most recently written frame for camera, or "" when
// none is staged.
func LatestFrame(frameDir, camera string) (string, error) {
	entries, err := os.ReadDir(frameDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	prefix := camera + "_"
	var (
		latest     string
		latestTime time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, FrameExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = filepath.Join(frameDir, name)
			latestTime = info.ModTime()
		}
	}
	return latest, nil
}
