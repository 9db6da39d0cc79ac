package pgtestenv

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/pgtestenv/internal/postgres"
	"github.com/giantswarm/pgtestenv/internal/process"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("pgtestenv: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("pgtestenv: %s must not be empty", name))
	}
}

// Option configures an Instance during construction via New.
//
// Several With* functions panic on invalid input (empty names, out of range
// ports, non-positive budgets). Option values are typically constants, so an
// invalid value is a programmer error and fails fast like
// [regexp.MustCompile].
type Option func(*instanceConfig)

// WithHost sets the TCP listen address, which is also the host in the DSN.
//
// Default: "127.0.0.1".
//
// Panics if host is empty.
func WithHost(host string) Option {
	requireNonEmpty("host", host)
	return func(c *instanceConfig) {
		c.Host = host
	}
}

// WithPort pins the TCP listen port instead of allocating a free one.
// Panics unless 0 < port <= 65535.
func WithPort(port int) Option {
	if port <= 0 || port > 65535 {
		panic(fmt.Sprintf("pgtestenv: port must be between 1 and 65535, got %d", port))
	}
	return func(c *instanceConfig) {
		c.Port = port
	}
}

// WithUser sets the database superuser. When the calling process is root it
// also names the OS account the server runs as, and is required.
//
// Default: "postgres".
//
// Panics if name is empty.
func WithUser(name string) Option {
	requireNonEmpty("user", name)
	return func(c *instanceConfig) {
		c.User = name
		c.UserSet = true
	}
}

// WithPostgresHome sets the installation prefix searched first for the
// executables, overriding $POSTGRES_HOME.
// Panics if dir is empty.
func WithPostgresHome(dir string) Option {
	requireNonEmpty("postgres home", dir)
	return func(c *instanceConfig) {
		c.Binaries.Home = dir
	}
}

// WithInitDBBinary sets the initdb executable, bypassing the search.
// Panics if binPath is empty.
func WithInitDBBinary(binPath string) Option {
	requireNonEmpty("initdb binary path", binPath)
	return func(c *instanceConfig) {
		c.Binaries.InitDB = binPath
	}
}

// WithServerBinary sets the postgres executable, bypassing the search.
// Panics if binPath is empty.
func WithServerBinary(binPath string) Option {
	requireNonEmpty("server binary path", binPath)
	return func(c *instanceConfig) {
		c.Binaries.Server = binPath
	}
}

// WithBaseDir sets the directory the workspace root is created in.
//
// Default: os.TempDir().
//
// Panics if dir is empty.
func WithBaseDir(dir string) Option {
	requireNonEmpty("base directory", dir)
	return func(c *instanceConfig) {
		c.BaseDir = dir
	}
}

// WithSocketPathLimit sets the longest workspace root still used as the
// socket directory.
//
// Default: 85.
//
// Panics if n <= 0.
func WithSocketPathLimit(n int) Option {
	requirePositive("socket path limit", n)
	return func(c *instanceConfig) {
		c.SocketPathLimit = n
	}
}

// WithReadiness sets how often and how long New polls the server port
// before reporting a startup timeout.
//
// Default: 50 attempts, 100ms apart.
//
// Panics if attempts or interval is not positive.
func WithReadiness(attempts int, interval time.Duration) Option {
	requirePositive("readiness attempts", attempts)
	requirePositive("readiness interval", interval)
	return func(c *instanceConfig) {
		c.Readiness = postgres.Readiness{Attempts: attempts, Interval: interval}
	}
}

// WithShutdown sets how often and how long Stop polls the server after
// SIGTERM before sending SIGKILL.
//
// Default: 50 attempts, 100ms apart.
//
// Panics if attempts or interval is not positive.
func WithShutdown(attempts int, interval time.Duration) Option {
	requirePositive("shutdown attempts", attempts)
	requirePositive("shutdown interval", interval)
	return func(c *instanceConfig) {
		c.Shutdown = process.StopPolicy{Attempts: attempts, Interval: interval}
	}
}

// WithInitDBArgs appends arguments to the initdb command line.
func WithInitDBArgs(args ...string) Option {
	return func(c *instanceConfig) {
		c.InitDBArgs = append(c.InitDBArgs, args...)
	}
}

// WithServerSetting passes "-c name=value" to the server. Later settings for
// the same name win.
// Panics if name is empty.
func WithServerSetting(name, value string) Option {
	requireNonEmpty("server setting name", name)
	return func(c *instanceConfig) {
		if c.ServerSettings == nil {
			c.ServerSettings = make(map[string]string)
		}
		c.ServerSettings[name] = value
	}
}

// WithKeepWorkspace leaves the workspace root, including the data directory
// and pg.log, on disk after Stop.
func WithKeepWorkspace() Option {
	return func(c *instanceConfig) {
		c.KeepWorkspace = true
	}
}

// WithLogger sets the logger for this instance only. See SetLogger for the
// package-wide default.
// Panics if l is nil.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("pgtestenv: logger must not be nil")
	}
	return func(c *instanceConfig) {
		c.logger = l
	}
}
