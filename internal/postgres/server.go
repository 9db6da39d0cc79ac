package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"os/exec"
	"slices"
	"strconv"
	"time"

	"github.com/giantswarm/pgtestenv/internal/process"
)

// Default readiness budget: up to DefaultReadyAttempts TCP connection attempts,
// DefaultReadyInterval apart.
const (
	DefaultReadyAttempts = 50
	DefaultReadyInterval = 100 * time.Millisecond
)

// readinessDialTimeout is the per-attempt timeout for the TCP dial used in
// readiness checks. Attempts against a port nobody listens on fail at once
// with connection refused, so this only guards against a silent peer.
const readinessDialTimeout = time.Second

// Compile-time interface satisfaction check.
var _ process.Stoppable = (*Server)(nil)

// Config holds the configuration for a server process.
type Config struct {
	Binary    string // Path to the postgres (or postmaster) executable
	DataDir   string // Initialized cluster directory
	Host      string // TCP listen address
	Port      int    // TCP listen port
	SocketDir string // Unix-domain socket directory
	LogPath   string // File receiving stdout and stderr
	// Settings become "-c key=value" arguments, in key order.
	Settings map[string]string
	// Credential runs the server as another account (root supervisor only).
	Credential *process.Credential

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// validate checks that all required Config fields are set and returns an error
// describing the first missing or invalid field.
func (c Config) validate() error {
	if c.Binary == "" {
		return errors.New("binary path must not be empty")
	}
	if c.DataDir == "" {
		return errors.New("data dir must not be empty")
	}
	if c.Host == "" {
		return errors.New("host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.SocketDir == "" {
		return errors.New("socket dir must not be empty")
	}
	if c.LogPath == "" {
		return errors.New("log path must not be empty")
	}
	return nil
}

// Args returns the server command line. -F disables fsync; the cluster is
// disposable.
func (c Config) Args() []string {
	args := []string{
		"-D", c.DataDir,
		"-p", strconv.Itoa(c.Port),
		"-h", c.Host,
		"-k", c.SocketDir,
		"-F",
	}
	for _, k := range slices.Sorted(maps.Keys(c.Settings)) {
		args = append(args, "-c", k+"="+c.Settings[k])
	}
	return args
}

// Readiness bounds WaitReady.
type Readiness struct {
	Attempts int
	Interval time.Duration
}

// DefaultReadiness returns the 50 x 100ms readiness budget.
func DefaultReadiness() Readiness {
	return Readiness{Attempts: DefaultReadyAttempts, Interval: DefaultReadyInterval}
}

// Server manages a server process lifecycle.
type Server struct {
	config Config
	base   process.BaseProcess
}

// New creates a new Server with the given configuration. It performs no I/O.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	return &Server{
		config: cfg,
		base:   process.NewBaseProcess("postgres", cfg.Logger, process.DefaultStopPolicy()),
	}, nil
}

// Start spawns the server in the foreground. Its lifetime is independent of
// any context; only Stop ends it. A spawn failure wraps ErrLaunchFailed.
func (s *Server) Start() error {
	if s.base.IsStarted() {
		return process.ErrAlreadyStarted
	}
	//nolint:gosec // binary path comes from the resolver or an explicit option
	cmd := exec.Command(s.config.Binary, s.config.Args()...)
	if err := s.base.SetupAndStart(cmd, s.config.SocketDir, s.config.LogPath, s.config.Credential); err != nil {
		return fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	s.base.Logger().Debug("postgres started", "pid", s.base.PID(), "host", s.config.Host, "port", s.config.Port)
	return nil
}

// WaitReady polls the TCP endpoint until it accepts a connection. Early exit
// of the server yields a *CrashedError holding the log; an exhausted budget
// yields a *TimeoutError. A canceled ctx is returned wrapped.
func (s *Server) WaitReady(ctx context.Context, r Readiness) error {
	if r.Attempts <= 0 || r.Interval <= 0 {
		r = DefaultReadiness()
	}
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	log := s.base.Logger()
	dialer := &net.Dialer{Timeout: readinessDialTimeout}
	err := process.WaitReady(ctx, process.WaitReadyConfig{
		Interval:      r.Interval,
		Attempts:      r.Attempts,
		Name:          "postgres",
		Port:          s.config.Port,
		Logger:        log,
		ProcessExited: s.base.Exited(),
	}, func(checkCtx context.Context, attempt int) (bool, error) {
		conn, err := dialer.DialContext(checkCtx, "tcp", addr)
		if err != nil {
			log.Debug("waitForPostgres attempt", "port", s.config.Port, "attempt", attempt, "error", err)
			return false, nil // Not ready yet
		}
		_ = conn.Close() // best-effort close of readiness check connection
		return true, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrProcessExited):
		return &CrashedError{Log: process.ReadLogTail(s.config.LogPath), Err: err}
	case errors.Is(err, process.ErrAttemptsExhausted):
		return &TimeoutError{Host: s.config.Host, Port: s.config.Port, Attempts: r.Attempts, Err: err}
	default:
		return fmt.Errorf("postgres not ready: %w", err)
	}
}

// PID returns the server process id, or 0 when it is not running.
func (s *Server) PID() int {
	return s.base.PID()
}

// Exited returns a channel closed when the server process exits.
func (s *Server) Exited() <-chan struct{} {
	return s.base.Exited()
}

// Stop terminates the server according to policy.
func (s *Server) Stop(policy process.StopPolicy) error {
	return s.base.Stop(policy)
}

// Close releases the log file handle, stopping the server first if needed.
func (s *Server) Close() {
	s.base.Close()
}
