package pgtestenv

import (
	"log/slog"
	"time"
)

// ConfigSnapshot holds a copy of instanceConfig fields for test assertions.
// Exported only via export_test.go so that the _test package can verify
// option closures actually mutate the config without accessing internals.
type ConfigSnapshot struct {
	Host             string
	Port             int
	User             string
	UserSet          bool
	PostgresHome     string
	InitDBBinary     string
	ServerBinary     string
	BaseDir          string
	SocketPathLimit  int
	ReadyAttempts    int
	ReadyInterval    time.Duration
	ShutdownAttempts int
	ShutdownInterval time.Duration
	InitDBArgs       []string
	ServerSettings   map[string]string
	KeepWorkspace    bool
	Logger           *slog.Logger
}

// ApplyOptionsForTesting creates a default instanceConfig, applies the
// given options, and returns a ConfigSnapshot of the result.
func ApplyOptionsForTesting(opts ...Option) ConfigSnapshot {
	cfg := defaultInstanceConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return ConfigSnapshot{
		Host:             cfg.Host,
		Port:             cfg.Port,
		User:             cfg.User,
		UserSet:          cfg.UserSet,
		PostgresHome:     cfg.Binaries.Home,
		InitDBBinary:     cfg.Binaries.InitDB,
		ServerBinary:     cfg.Binaries.Server,
		BaseDir:          cfg.BaseDir,
		SocketPathLimit:  cfg.SocketPathLimit,
		ReadyAttempts:    cfg.Readiness.Attempts,
		ReadyInterval:    cfg.Readiness.Interval,
		ShutdownAttempts: cfg.Shutdown.Attempts,
		ShutdownInterval: cfg.Shutdown.Interval,
		InitDBArgs:       cfg.InitDBArgs,
		ServerSettings:   cfg.ServerSettings,
		KeepWorkspace:    cfg.KeepWorkspace,
		Logger:           cfg.logger,
	}
}

// WithEUIDForTesting substitutes the effective uid seen by the privilege
// check.
func WithEUIDForTesting(euid int) Option {
	return func(c *instanceConfig) {
		c.hooks.Geteuid = func() int { return euid }
	}
}

// WithIsolatedBinariesForTesting disables the PATH, $POSTGRES_HOME and
// well-known directory search so only explicit binaries are used.
func WithIsolatedBinariesForTesting() Option {
	return func(c *instanceConfig) {
		c.Binaries.NoEnv = true
		c.Binaries.WellKnown = []string{}
	}
}
