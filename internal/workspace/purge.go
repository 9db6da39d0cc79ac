package workspace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/giantswarm/pgtestenv/internal/fileutil"
)

// unlockedGrace protects a workspace root that has no lock file yet: Create
// writes the lock right after the directory, so only a root older than this
// without a lock file is treated as abandoned.
const unlockedGrace = time.Minute

// PurgeConfig selects where PurgeStale looks.
type PurgeConfig struct {
	BaseDir      string // empty means os.TempDir()
	FallbackBase string // empty means DefaultFallbackBase()
	Logger       *slog.Logger
}

// PurgeStale removes workspaces abandoned by processes that died without
// tearing down: roots whose lock nobody holds and fallback socket
// directories whose owner pid is gone. It returns the removed paths.
// Workspaces of live instances, including those of the calling process,
// are never touched.
func PurgeStale(ctx context.Context, cfg PurgeConfig) ([]string, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	base := cfg.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	fallbackBase := cfg.FallbackBase
	if fallbackBase == "" {
		fallbackBase = DefaultFallbackBase()
	}

	var (
		removed []string
		errs    []error
	)

	roots, err := filepath.Glob(filepath.Join(base, RootPrefix+"*"))
	if err != nil {
		return nil, &Error{Op: "scan", Path: base, Err: err}
	}
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ok, err := purgeRoot(root, log)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed = append(removed, root)
		}
	}

	dirs, err := filepath.Glob(filepath.Join(fallbackBase, FallbackPrefix+"*_*"))
	if err != nil {
		return removed, &Error{Op: "scan", Path: fallbackBase, Err: err}
	}
	self := os.Getpid()
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		pid, ok := fallbackOwner(dir)
		if !ok || pid == self || processAlive(pid) {
			continue
		}
		if err := fileutil.RemoveTree(dir); err != nil {
			errs = append(errs, &Error{Op: "purge", Path: dir, Err: err})
			continue
		}
		log.Debug("purged stale socket directory", "path", dir, "owner_pid", pid)
		removed = append(removed, dir)
	}

	return removed, errors.Join(errs...)
}

// purgeRoot removes root when no live workspace holds its lock.
func purgeRoot(root string, log *slog.Logger) (bool, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return false, nil
	}

	lockPath := filepath.Join(root, LockFileName)
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		if time.Since(info.ModTime()) < unlockedGrace {
			return false, nil
		}
		if err := fileutil.RemoveTree(root); err != nil {
			return false, &Error{Op: "purge", Path: root, Err: err}
		}
		log.Debug("purged unlocked workspace", "path", root)
		return true, nil
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return false, &Error{Op: "lock", Path: lockPath, Err: err}
	}
	if !locked {
		return false, nil
	}
	defer func() { _ = fl.Close() }()

	if err := fileutil.RemoveTree(root); err != nil {
		return false, &Error{Op: "purge", Path: root, Err: err}
	}
	log.Debug("purged stale workspace", "path", root)
	return true, nil
}

// fallbackOwner extracts the owner pid from a "pgtestenv_<pid>_<rand>" path.
func fallbackOwner(dir string) (int, bool) {
	name := strings.TrimPrefix(filepath.Base(dir), FallbackPrefix)
	pidText, _, found := strings.Cut(name, "_")
	if !found {
		return 0, false
	}
	pid, err := strconv.Atoi(pidText)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive reports whether pid names a running process. A permission
// error still proves the process exists.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
