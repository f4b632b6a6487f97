package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sxvrs/internal/config"
)

// daemonLogPattern matches the per-run daemon log files.
const daemonLogPattern = "sxvrs-*.log"

// RetentionTarget is a directory whose files matching Pattern expire after
// the retention period. Paths listed in Exclude are always kept.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// RetentionTargets lists everything log retention prunes for cfg: the daemon
// run logs (except current) and the camera process logs, where the active
// file of every configured camera is kept and logs of cameras no longer in
// the config expire with their backups.
func RetentionTargets(cfg *config.Config, current string) []RetentionTarget {
	if cfg == nil {
		return nil
	}
	targets := []RetentionTarget{{
		Dir:     cfg.Paths.LogDir,
		Pattern: daemonLogPattern,
		Exclude: []string{current},
	}}
	procDir := ProcessLogOptionsFromConfig(cfg).Dir
	active := make([]string, 0, len(cfg.Cameras))
	for _, entry := range cfg.Cameras {
		if name := strings.TrimSpace(entry.Name); name != "" {
			active = append(active, ProcessLogPath(procDir, name))
		}
	}
	return append(targets, RetentionTarget{Dir: procDir, Pattern: "*.log*", Exclude: active})
}

// CleanupOldLogs removes files in targets that are older than retentionDays
// and returns how many were removed. retentionDays <= 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		removed += pruneTarget(logger, target, cutoff)
	}
	if removed > 0 && logger != nil {
		logger.Info("old logs pruned",
			Int("removed", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_retention"),
		)
	}
	return removed
}

func pruneTarget(logger *slog.Logger, target RetentionTarget, cutoff time.Time) int {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	keep := make(map[string]struct{}, len(target.Exclude))
	for _, path := range target.Exclude {
		if abs := absPath(path); abs != "" {
			keep[abs] = struct{}{}
		}
	}
	pattern := strings.TrimSpace(target.Pattern)

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path := absPath(filepath.Join(dir, entry.Name()))
		if _, ok := keep[path]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}

func absPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
