package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DBFileName is the database file created inside the storage directory.
const DBFileName = "synthlik.db"

// DefaultDir returns the default storage directory.
// On Unix: ~/.synthlik
// On Windows: %USERPROFILE%\.synthlik
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".synthlik"), nil
}

// EnsureDir creates dir if it doesn't exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return nil
}
