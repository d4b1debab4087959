package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RunLogPattern matches the per-run daemon log files in the log directory.
const RunLogPattern = "recut-*.log"

// RunLogPath returns the log file for a daemon run started at started.
func RunLogPath(dir string, started time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("recut-%s.log", started.UTC().Format("20060102T150405.000Z")))
}

// PruneRunLogs deletes run logs in dir last written more than retentionDays
// ago, never touching current. It returns the removed paths, oldest first.
// retentionDays <= 0 keeps everything.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int, current string, now time.Time) []string {
	if retentionDays <= 0 || dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, RunLogPattern))
	if err != nil {
		return nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	keep, _ := filepath.Abs(current)

	type candidate struct {
		path string
		mod  time.Time
	}
	var stale []candidate
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == keep {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		stale = append(stale, candidate{path: path, mod: info.ModTime()})
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].mod.Before(stale[j].mod) })

	removed := make([]string, 0, len(stale))
	for _, c := range stale {
		if err := os.Remove(c.path); err != nil {
			WarnWithContext(logger, "run log not pruned", "log_retention_failed",
				String("path", c.path),
				Error(err),
				String(FieldErrorHint, "check log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed = append(removed, c.path)
	}
	if len(removed) > 0 && logger != nil {
		logger.Info("run logs pruned",
			Int("count", len(removed)),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
