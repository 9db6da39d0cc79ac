package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/giantswarm/pgtestenv/internal/binpath"
	"github.com/giantswarm/pgtestenv/internal/postgres"
	"github.com/giantswarm/pgtestenv/internal/process"
)

// Defaults applied by the public package before an Instance is created.
const (
	DefaultHost = "127.0.0.1"
	DefaultUser = "postgres"
)

// Config holds configuration for one Instance.
// All fields are immutable after construction via New.
type Config struct {
	// Host is the TCP listen address and the host placed in the DSN.
	Host string
	// Port is an explicit listen port; 0 allocates a free one.
	Port int
	// User is the database superuser and, when running as root, the OS
	// account the server runs under.
	User string
	// UserSet records that User was chosen by the caller rather than
	// defaulted. Root refuses to proceed without it.
	UserSet bool

	// Binaries controls executable discovery.
	Binaries binpath.Config

	// BaseDir is the parent of the workspace root; empty means os.TempDir().
	BaseDir string
	// SocketPathLimit overrides the socket directory length limit when positive.
	SocketPathLimit int
	// KeepWorkspace leaves the workspace root on disk after Stop.
	KeepWorkspace bool

	// InitDBArgs are appended to the initdb command line.
	InitDBArgs []string
	// ServerSettings become "-c key=value" server arguments.
	ServerSettings map[string]string

	Readiness postgres.Readiness
	Shutdown  process.StopPolicy
}

// Validate checks all Config invariants and returns an error describing
// every violation found, joined with errors.Join.
func (c Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host must not be empty"))
	} else if strings.ContainsAny(c.Host, " ;=") {
		errs = append(errs, fmt.Errorf("host %q must not contain spaces, ';' or '='", c.Host))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 0 and 65535, got %d", c.Port))
	}
	if c.User == "" {
		errs = append(errs, errors.New("user must not be empty"))
	}
	if c.SocketPathLimit < 0 {
		errs = append(errs, fmt.Errorf("socket path limit must not be negative, got %d", c.SocketPathLimit))
	}
	if c.Readiness.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("readiness attempts must be greater than 0, got %d", c.Readiness.Attempts))
	}
	if c.Readiness.Interval <= 0 {
		errs = append(errs, fmt.Errorf("readiness interval must be greater than 0, got %s", c.Readiness.Interval))
	}
	if c.Shutdown.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("shutdown attempts must be greater than 0, got %d", c.Shutdown.Attempts))
	}
	if c.Shutdown.Interval <= 0 {
		errs = append(errs, fmt.Errorf("shutdown interval must be greater than 0, got %s", c.Shutdown.Interval))
	}
	for k := range c.ServerSettings {
		if k == "" || strings.ContainsAny(k, "= ") {
			errs = append(errs, fmt.Errorf("invalid server setting name %q", k))
		}
	}

	return errors.Join(errs...)
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		Host:      DefaultHost,
		User:      DefaultUser,
		Readiness: postgres.DefaultReadiness(),
		Shutdown:  process.DefaultStopPolicy(),
	}
}
