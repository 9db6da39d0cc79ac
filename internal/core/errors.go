package core

import (
	"github.com/giantswarm/pgtestenv/internal/binpath"
	"github.com/giantswarm/pgtestenv/internal/initdb"
	"github.com/giantswarm/pgtestenv/internal/postgres"
	"github.com/giantswarm/pgtestenv/internal/sentinel"
	"github.com/giantswarm/pgtestenv/internal/workspace"
)

// ErrPrivilegeDenied is returned when the supervisor runs with root
// privileges and no unprivileged account was named to own the cluster, or
// the named account does not exist.
const ErrPrivilegeDenied = sentinel.Error("refusing to run the database server with root privileges")

// Error kinds re-exported so the public package imports them from core only.
const (
	ErrBinaryNotFound = binpath.ErrBinaryNotFound
	ErrWorkspace      = workspace.ErrWorkspace
	ErrInitFailed     = initdb.ErrInitFailed
	ErrLaunchFailed   = postgres.ErrLaunchFailed
	ErrStartupCrashed = postgres.ErrStartupCrashed
	ErrStartupTimeout = postgres.ErrStartupTimeout
)

// Typed errors carrying per-kind detail.
type (
	BinaryNotFoundError = binpath.NotFoundError
	WorkspaceError      = workspace.Error
	InitFailedError     = initdb.FailedError
	StartupCrashedError = postgres.CrashedError
	StartupTimeoutError = postgres.TimeoutError
)
