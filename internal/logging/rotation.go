package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultKeepRuns is how many previous run logs are kept when the
// configuration does not say otherwise.
const DefaultKeepRuns = 3

// OpenRunLog rotates the logs of previous runs in logDir and opens a fresh
// harness.log for this run. Older logs are shifted to harness.log.1 (most
// recent) through harness.log.<keepRuns>; anything beyond that is removed.
// A keepRuns of 0 discards the previous log.
func OpenRunLog(logDir string, keepRuns int) (*os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, LogFileName)
	if err := RotateRunLogs(logPath, keepRuns); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// RotateRunLogs shifts logPath to logPath.1, logPath.1 to logPath.2 and so
// on, dropping the oldest beyond keepRuns. Missing files are skipped.
func RotateRunLogs(logPath string, keepRuns int) error {
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return nil
	}

	if keepRuns <= 0 {
		if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove previous log: %w", err)
		}
		return nil
	}

	oldest := backupPath(logPath, keepRuns)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove oldest log %s: %w", oldest, err)
	}

	for i := keepRuns - 1; i >= 1; i-- {
		from := backupPath(logPath, i)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, backupPath(logPath, i+1)); err != nil {
			return fmt.Errorf("failed to rotate log %s: %w", from, err)
		}
	}

	if err := os.Rename(logPath, backupPath(logPath, 1)); err != nil {
		return fmt.Errorf("failed to rotate log %s: %w", logPath, err)
	}
	return nil
}

func backupPath(logPath string, n int) string {
	return fmt.Sprintf("%s.%d", logPath, n)
}
