package pgtestenv

// Instance is a running PostgreSQL server together with its workspace.
//
// Callers must follow this lifecycle ordering:
//
//	New → use (DSN, ConnString, Env, ...) → Stop
//
// All accessors are safe for concurrent use and keep returning the values
// captured at construction after Stop.
type Instance interface {
	// DSN returns the connection string in the
	// "dbi:Pg:dbname=postgres;host=<host>;port=<port>" form.
	DSN() string

	// Descriptor returns the DSN together with the user, the empty password
	// and the connection attributes a client should apply.
	Descriptor() Descriptor

	// ConnString returns a libpq URL suitable for pgx and database/sql.
	ConnString() string

	// Env returns the PGHOST, PGPORT, PGUSER, PGDATABASE and DATABASE_URL
	// variables as "KEY=value" pairs, ready to append to exec.Cmd.Env.
	Env() []string

	// ID returns a unique identifier for this instance.
	ID() string

	// Host returns the TCP listen address.
	Host() string

	// Port returns the TCP listen port.
	Port() int

	// User returns the database superuser.
	User() string

	// PID returns the server process id, or 0 after Stop.
	PID() int

	// OwnerPID returns the pid of the process that called New.
	OwnerPID() int

	// RootDir returns the workspace root.
	RootDir() string

	// DataDir returns the cluster data directory.
	DataDir() string

	// SocketDir returns the Unix-domain socket directory.
	SocketDir() string

	// LogPath returns the combined initdb and server log.
	LogPath() string

	// Exited is closed once the server process has exited, whether through
	// Stop or because it died.
	Exited() <-chan struct{}

	// Running reports whether the server has been started and not stopped.
	Running() bool

	// Stop terminates the server, waiting up to the shutdown budget before
	// killing it, and removes the workspace. It is idempotent, safe for
	// concurrent use, never fails, and does nothing when called from a
	// process other than the one that created the instance.
	Stop()
}
