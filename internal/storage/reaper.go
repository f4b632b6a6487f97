package storage

import (
	"cmp"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"sxvrs/internal/logging"
	"sxvrs/internal/services"
)

// Options tunes a reap pass.
type Options struct {
	Logger *slog.Logger
	// OnDelete receives each evicted file path in deletion order.
	OnDelete func(path string)
	// Keep lists directories that survive empty-directory pruning, such as
	// the directory a recording is about to be written into.
	Keep []string
}

// CleanupError pairs a path with the error that prevented its removal.
type CleanupError struct {
	Path  string
	Error error
}

// Result summarizes one reap pass.
type Result struct {
	Root           string
	Deleted        []string
	DeletedBytes   int64
	RemovedDirs    []string
	Kept           int
	RemainingBytes int64
	Errors         []CleanupError
}

// Reap deletes the oldest files under root until the total size is at most
// maxBytes, then removes directories left empty. maxBytes <= 0 disables
// eviction; empty directories are still pruned. A scan failure aborts the
// pass and is returned. Removal failures are collected in Result.Errors.
func Reap(ctx context.Context, root string, maxBytes int64, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	root = filepath.Clean(strings.TrimSpace(root))
	result := Result{Root: root}

	tree, err := Scan(ctx, root)
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "storage", "scan", "Failed to scan recording directory", err)
	}

	files := sortNewestFirst(tree.Files)
	var cumsum int64
	for _, entry := range files {
		cumsum += entry.Size
		if maxBytes <= 0 || cumsum <= maxBytes {
			result.Kept++
			result.RemainingBytes += entry.Size
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := os.Remove(entry.Path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("evicted file already gone", logging.String("path", entry.Path))
				continue
			}
			result.Errors = append(result.Errors, CleanupError{Path: entry.Path, Error: err})
			result.Kept++
			result.RemainingBytes += entry.Size
			logging.WarnWithContext(logger, "failed to evict recording", "storage_evict_failed",
				logging.String("path", entry.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the storage directory"),
				logging.String(logging.FieldImpact, "storage may stay above storage_max_size"),
			)
			continue
		}
		result.Deleted = append(result.Deleted, entry.Path)
		result.DeletedBytes += entry.Size
		logger.Info("evicted recording",
			logging.String("path", entry.Path),
			logging.Int64("size_bytes", entry.Size),
			logging.String(logging.FieldEventType, "storage_evicted"),
		)
		if opts.OnDelete != nil {
			opts.OnDelete(entry.Path)
		}
	}

	result.RemovedDirs = pruneEmptyDirs(tree.Dirs, opts.Keep, logger, &result.Errors)
	return result, nil
}

// sortNewestFirst orders by modification time descending, then by path so the
// order is deterministic for equal timestamps.
func sortNewestFirst(files []FileEntry) []FileEntry {
	out := slices.Clone(files)
	slices.SortStableFunc(out, func(a, b FileEntry) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return out
}

func pruneEmptyDirs(dirs, keep []string, logger *slog.Logger, errs *[]CleanupError) []string {
	keepSet := make(map[string]struct{}, len(keep))
	for _, dir := range keep {
		if dir = strings.TrimSpace(dir); dir != "" {
			keepSet[filepath.Clean(dir)] = struct{}{}
		}
	}

	ordered := slices.Clone(dirs)
	slices.SortFunc(ordered, func(a, b string) int {
		if c := cmp.Compare(depth(b), depth(a)); c != 0 {
			return c
		}
		return cmp.Compare(b, a)
	})

	var removed []string
	for _, dir := range ordered {
		if _, ok := keepSet[filepath.Clean(dir)]; ok {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			switch {
			case errors.Is(err, fs.ErrNotExist):
			case errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EEXIST):
				logger.Debug("directory repopulated during prune", logging.String("path", dir))
			default:
				*errs = append(*errs, CleanupError{Path: dir, Error: err})
				logger.Debug("empty directory removal failed", logging.String("path", dir), logging.Error(err))
			}
			continue
		}
		removed = append(removed, dir)
	}
	return removed
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(path), "/")
}
