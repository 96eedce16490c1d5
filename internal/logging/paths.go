package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.blockindex/logs, or a temp directory without a home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".blockindex", "logs")
	}
	return filepath.Join(home, ".blockindex", "logs")
}

// DefaultLogPath is the log file inside DefaultLogDir.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "blockindex.log")
}

// FindLogFile returns explicit if set, else DefaultLogPath, provided the
// file exists.
func FindLogFile(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file at %s (run a command with --debug first)", path)
	}
	return path, nil
}
