package process

import (
	"fmt"
	"io"
	"os"
)

// logFileMode restricts the log to its owner; it can contain connection
// details and query text.
const logFileMode = 0o600

// maxLogTail bounds how much of a log file ReadLogTail returns.
const maxLogTail = 64 * 1024

// OpenLogFile opens path for appending, creating it if necessary. Both the
// cluster initializer and the server write to the same file, so it is never
// truncated.
func OpenLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}

// ReadLogTail returns up to the last 64 KiB of the file at path. A missing or
// unreadable file yields an empty string; the log is diagnostic only.
func ReadLogTail(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	if size := info.Size(); size > maxLogTail {
		if _, err := f.Seek(size-maxLogTail, io.SeekStart); err != nil {
			return ""
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(data)
}
