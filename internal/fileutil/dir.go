package fileutil

import (
	"fmt"
	"os"
)

// PrivateDirMode is the permission mode for directories only the owning
// user may enter.
const PrivateDirMode os.FileMode = 0o700

// EnsureDir creates a directory and all parent directories if they don't exist.
// Uses mode 0755. Returns nil if directory already exists.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// RemoveTree deletes path and everything below it. A path that does not
// exist is not an error.
func RemoveTree(path string) error {
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
