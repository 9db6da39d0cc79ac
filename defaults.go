package pgtestenv

import (
	"github.com/giantswarm/pgtestenv/internal/binpath"
	"github.com/giantswarm/pgtestenv/internal/core"
	"github.com/giantswarm/pgtestenv/internal/netutil"
	"github.com/giantswarm/pgtestenv/internal/postgres"
	"github.com/giantswarm/pgtestenv/internal/process"
	"github.com/giantswarm/pgtestenv/internal/workspace"
)

// Default configuration values for New.
const (
	// DefaultHost is the TCP listen address.
	DefaultHost = core.DefaultHost

	// DefaultUser is the database superuser created by initdb.
	DefaultUser = core.DefaultUser

	// DefaultDatabase is the database named in every DSN.
	DefaultDatabase = "postgres"

	// DefaultReadyAttempts and DefaultReadyInterval bound the wait for the
	// server to accept TCP connections: 50 attempts, 100ms apart.
	DefaultReadyAttempts = postgres.DefaultReadyAttempts
	DefaultReadyInterval = postgres.DefaultReadyInterval

	// DefaultStopAttempts and DefaultStopInterval bound the graceful part of
	// Stop: after SIGTERM the server is polled 50 times, 100ms apart, before
	// it is killed.
	DefaultStopAttempts = process.DefaultStopAttempts
	DefaultStopInterval = process.DefaultStopInterval

	// DefaultSocketPathLimit is the longest workspace root that is also used
	// as the Unix socket directory. Longer roots get a short socket
	// directory under /tmp instead.
	DefaultSocketPathLimit = workspace.DefaultSocketPathLimit

	// DefaultFallbackPort is used, with a warning, when no free port can be
	// obtained on the listen host.
	DefaultFallbackPort = netutil.DefaultFallbackPort

	// HomeEnv names the environment variable pointing at a PostgreSQL
	// installation prefix.
	HomeEnv = binpath.HomeEnv
)
