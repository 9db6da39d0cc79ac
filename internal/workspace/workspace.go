package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/giantswarm/pgtestenv/internal/fileutil"
)

// Workspace layout names.
const (
	RootPrefix     = "pgtestenv-"
	FallbackPrefix = "pgtestenv_"
	DataDirName    = "data"
	LogFileName    = "pg.log"
	LockFileName   = ".lock"
)

// DefaultSocketPathLimit is the longest socket directory accepted before a
// short fallback directory is used. The server appends
// "/.s.PGSQL.<port>.lock" to it and sun_path holds at most 104-108 bytes.
const DefaultSocketPathLimit = 85

// Owner is the account that must own the workspace when the supervisor runs
// with root privileges and the server runs unprivileged.
type Owner struct {
	UID int
	GID int
}

// Config controls where and how a workspace is created.
type Config struct {
	// BaseDir is the parent of the workspace root. Empty means os.TempDir().
	BaseDir string
	// FallbackBase is the parent of the short socket directory. Empty means
	// DefaultFallbackBase().
	FallbackBase string
	// ID is embedded in the root directory name for easier debugging.
	ID string
	// SocketPathLimit overrides DefaultSocketPathLimit when positive.
	SocketPathLimit int
	// OwnerPID is recorded in the fallback directory name so PurgeStale can
	// detect orphans.
	OwnerPID int
	// Owner, when set, receives ownership of every created path.
	Owner  *Owner
	Logger *slog.Logger
}

// Workspace is one provisioned instance area. Its exported fields are fixed
// after Create returns.
type Workspace struct {
	Root      string
	DataDir   string
	SocketDir string
	LogPath   string
	// FallbackSocketDir is non-empty when SocketDir lives outside Root.
	FallbackSocketDir string
	OwnerPID          int

	log  *slog.Logger
	lock *flock.Flock

	mu              sync.Mutex
	fallbackRemoved bool
	released        bool
}

// DefaultFallbackBase returns /tmp when it exists and os.TempDir()
// otherwise. TMPDIR on macOS is too long to help with socket paths.
func DefaultFallbackBase() string {
	if info, err := os.Stat("/tmp"); err == nil && info.IsDir() {
		return "/tmp"
	}
	return os.TempDir()
}

// Create provisions a fresh workspace. The data directory itself is not
// created; initdb requires it to be absent or empty and creates it with the
// permissions the server expects. On failure everything created so far is
// removed.
func Create(cfg Config) (_ *Workspace, retErr error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	base := cfg.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	limit := cfg.SocketPathLimit
	if limit <= 0 {
		limit = DefaultSocketPathLimit
	}
	ownerPID := cfg.OwnerPID
	if ownerPID == 0 {
		ownerPID = os.Getpid()
	}

	if err := fileutil.EnsureDir(base); err != nil {
		return nil, &Error{Op: "create base directory", Path: base, Err: err}
	}

	pattern := RootPrefix + "*"
	if cfg.ID != "" {
		pattern = RootPrefix + cfg.ID + "-*"
	}
	root, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return nil, &Error{Op: "create root directory", Path: base, Err: err}
	}
	if abs, absErr := filepath.Abs(root); absErr == nil {
		root = abs
	}

	w := &Workspace{
		Root:      root,
		DataDir:   filepath.Join(root, DataDirName),
		SocketDir: root,
		LogPath:   filepath.Join(root, LogFileName),
		OwnerPID:  ownerPID,
		log:       log,
	}
	defer func() {
		if retErr != nil {
			w.discard()
		}
	}()

	if err := os.Chmod(root, fileutil.PrivateDirMode); err != nil {
		return nil, &Error{Op: "restrict root directory", Path: root, Err: err}
	}

	w.lock = flock.New(filepath.Join(root, LockFileName))
	locked, err := w.lock.TryLock()
	if err != nil {
		return nil, &Error{Op: "lock", Path: w.lock.Path(), Err: err}
	}
	if !locked {
		return nil, &Error{Op: "lock", Path: w.lock.Path(), Err: errors.New("lock held by another process")}
	}

	logFile, err := os.OpenFile(w.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, &Error{Op: "create log file", Path: w.LogPath, Err: err}
	}
	_ = logFile.Close()

	if len(root) > limit {
		fallbackBase := cfg.FallbackBase
		if fallbackBase == "" {
			fallbackBase = DefaultFallbackBase()
		}
		dir, err := os.MkdirTemp(fallbackBase, fmt.Sprintf("%s%d_", FallbackPrefix, ownerPID))
		if err != nil {
			return nil, &Error{Op: "create socket directory", Path: fallbackBase, Err: err}
		}
		w.FallbackSocketDir = dir
		w.SocketDir = dir
		if len(dir) > limit {
			return nil, &Error{
				Op:   "create socket directory",
				Path: dir,
				Err:  fmt.Errorf("path longer than %d characters", limit),
			}
		}
		log.Debug("using short socket directory", "root", root, "socket_dir", dir)
	}

	if cfg.Owner != nil {
		if err := w.chown(*cfg.Owner); err != nil {
			return nil, err
		}
	}

	log.Debug("workspace created", "root", w.Root, "socket_dir", w.SocketDir)
	return w, nil
}

func (w *Workspace) chown(o Owner) error {
	paths := []string{w.Root, w.LogPath}
	if w.FallbackSocketDir != "" {
		paths = append(paths, w.FallbackSocketDir)
	}
	for _, p := range paths {
		if err := os.Chown(p, o.UID, o.GID); err != nil {
			return &Error{Op: "chown", Path: p, Err: err}
		}
	}
	return nil
}

// RemoveFallback deletes the short socket directory, if one was created.
// Later calls do nothing.
func (w *Workspace) RemoveFallback() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removeFallbackLocked()
}

func (w *Workspace) removeFallbackLocked() error {
	if w.FallbackSocketDir == "" || w.fallbackRemoved {
		return nil
	}
	w.fallbackRemoved = true
	if err := fileutil.RemoveTree(w.FallbackSocketDir); err != nil {
		return &Error{Op: "remove socket directory", Path: w.FallbackSocketDir, Err: err}
	}
	return nil
}

// Release removes the fallback socket directory and, unless keep is set,
// the workspace root, then drops the lock. Later calls do nothing. A kept
// root is unlocked, so a later PurgeStale may collect it.
func (w *Workspace) Release(keep bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil
	}
	w.released = true

	var errs []error
	if err := w.removeFallbackLocked(); err != nil {
		errs = append(errs, err)
	}
	if keep {
		w.log.Info("keeping workspace", "root", w.Root)
	} else if err := fileutil.RemoveTree(w.Root); err != nil {
		errs = append(errs, &Error{Op: "remove root directory", Path: w.Root, Err: err})
	}
	w.unlock()
	return errors.Join(errs...)
}

// discard undoes a partial Create.
func (w *Workspace) discard() {
	if w.FallbackSocketDir != "" {
		_ = fileutil.RemoveTree(w.FallbackSocketDir)
	}
	_ = fileutil.RemoveTree(w.Root)
	w.unlock()
}

// unlock releases the flock. The lock file is removed together with the
// root, never on its own, so a concurrent PurgeStale cannot lock a file
// that is about to disappear and mistake a live workspace for a stale one.
func (w *Workspace) unlock() {
	if w.lock == nil {
		return
	}
	if err := w.lock.Close(); err != nil {
		w.log.Debug("failed to release workspace lock", "path", w.lock.Path(), "err", err)
	}
	w.lock = nil
}
