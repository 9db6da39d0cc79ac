package pgtestenv

import "github.com/giantswarm/pgtestenv/internal/core"

// Error kinds for inspection with errors.Is. A failure in one of New's
// construction steps matches exactly one of them. An invalid configuration,
// or ctx ending before the server is ready, is returned without a kind; the
// latter still matches ctx.Err().
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrPrivilegeDenied is returned when the process runs as root and
	// WithUser was not given, or the user does not map to an unprivileged
	// OS account.
	ErrPrivilegeDenied = core.ErrPrivilegeDenied

	// ErrBinaryNotFound is returned when initdb or the server executable
	// cannot be located. See BinaryNotFoundError for the directories searched.
	ErrBinaryNotFound = core.ErrBinaryNotFound

	// ErrWorkspace is returned when the workspace root, socket directory or
	// log file cannot be created.
	ErrWorkspace = core.ErrWorkspace

	// ErrInitFailed is returned when initdb exits non-zero.
	ErrInitFailed = core.ErrInitFailed

	// ErrLaunchFailed is returned when the server process cannot be started.
	ErrLaunchFailed = core.ErrLaunchFailed

	// ErrStartupCrashed is returned when the server exits before accepting
	// connections. StartupCrashedError carries the log.
	ErrStartupCrashed = core.ErrStartupCrashed

	// ErrStartupTimeout is returned when the server is alive but never
	// accepted a TCP connection within the readiness budget.
	ErrStartupTimeout = core.ErrStartupTimeout
)

// Typed errors carrying per-kind detail, for use with errors.As.
type (
	// BinaryNotFoundError names the missing executable and the search path.
	BinaryNotFoundError = core.BinaryNotFoundError
	// WorkspaceError names the failed operation and path.
	WorkspaceError = core.WorkspaceError
	// InitFailedError carries the initdb exit code and output.
	InitFailedError = core.InitFailedError
	// StartupCrashedError carries the server log at the time of the crash.
	StartupCrashedError = core.StartupCrashedError
	// StartupTimeoutError names the host and port that never answered.
	StartupTimeoutError = core.StartupTimeoutError
)
