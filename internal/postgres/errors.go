package postgres

import (
	"fmt"
	"strings"

	"github.com/giantswarm/pgtestenv/internal/sentinel"
)

// Error kinds reported by Start and WaitReady.
const (
	// ErrLaunchFailed means the server process could not be spawned.
	ErrLaunchFailed = sentinel.Error("server launch failed")
	// ErrStartupCrashed means the server exited before accepting connections.
	ErrStartupCrashed = sentinel.Error("server exited during startup")
	// ErrStartupTimeout means the server stayed alive but never accepted
	// connections within the readiness budget.
	ErrStartupTimeout = sentinel.Error("server did not accept connections in time")
)

// CrashedError carries the server log captured after an early exit.
type CrashedError struct {
	Log string
	Err error
}

func (e *CrashedError) Error() string {
	msg := ErrStartupCrashed.Error()
	if log := strings.TrimSpace(e.Log); log != "" {
		msg += ":\n" + log
	}
	return msg
}

func (e *CrashedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStartupCrashed}
	}
	return []error{ErrStartupCrashed, e.Err}
}

// TimeoutError names the endpoint that never became reachable.
type TimeoutError struct {
	Host     string
	Port     int
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s:%d unreachable after %d attempts", ErrStartupTimeout, e.Host, e.Port, e.Attempts)
}

func (e *TimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStartupTimeout}
	}
	return []error{ErrStartupTimeout, e.Err}
}
