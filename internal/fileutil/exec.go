package fileutil

import "os"

// IsExecutable reports whether path names a regular file with at least one
// execute permission bit set. Symlinks are followed.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
