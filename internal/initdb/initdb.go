package initdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/giantswarm/pgtestenv/internal/process"
	"github.com/giantswarm/pgtestenv/internal/sentinel"
)

// ErrInitFailed is the kind of error returned when initdb cannot be run or
// exits non-zero.
const ErrInitFailed = sentinel.Error("initdb failed")

// FailedError reports a failed initdb run. ExitCode is -1 when the tool
// could not be started or was killed by a signal.
type FailedError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *FailedError) Error() string {
	msg := fmt.Sprintf("%s with exit code %d", ErrInitFailed, e.ExitCode)
	if e.Err != nil && e.ExitCode < 0 {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *FailedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInitFailed}
	}
	return []error{ErrInitFailed, e.Err}
}

// Config holds the parameters of one initdb run.
type Config struct {
	Binary  string // Path to the initdb executable
	DataDir string // Cluster directory; must be absent or empty
	User    string // Database superuser name
	// ExtraArgs are appended after the standard flags.
	ExtraArgs []string
	// LogPath, when set, receives a copy of the tool's output.
	LogPath string
	// Credential runs the tool as another account (root supervisor only).
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
	if c.User == "" {
		return errors.New("user must not be empty")
	}
	return nil
}

// Args returns the command line for cfg: trust authentication for local
// connections, UTF-8 encoding with the C locale, and no fsync since the
// cluster is disposable.
func (c Config) Args() []string {
	args := []string{
		"-D", c.DataDir,
		"-U", c.User,
		"-A", "trust",
		"-E", "UTF8",
		"--no-locale",
		"-N",
	}
	return append(args, c.ExtraArgs...)
}

// Run executes initdb and waits for it to finish. A non-zero exit or a
// failure to start is returned as a *FailedError.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid initdb config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	var output bytes.Buffer
	var sink io.Writer = &output
	if cfg.LogPath != "" {
		logFile, err := process.OpenLogFile(cfg.LogPath)
		if err != nil {
			return &FailedError{ExitCode: -1, Err: err}
		}
		defer func() { _ = logFile.Close() }()
		sink = io.MultiWriter(&output, logFile)
	}

	cmd := exec.CommandContext(ctx, cfg.Binary, cfg.Args()...)
	cmd.Dir = filepath.Dir(cfg.DataDir)
	cmd.Stdout = sink
	cmd.Stderr = sink
	process.Apply(cmd, cfg.Credential)

	log.Debug("running initdb", "binary", cfg.Binary, "data_dir", cfg.DataDir)
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &FailedError{ExitCode: code, Output: output.String(), Err: err}
	}
	log.Debug("initdb finished", "data_dir", cfg.DataDir)
	return nil
}
