package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Default shutdown budget: SIGTERM, then up to DefaultStopAttempts polls
// DefaultStopInterval apart, then SIGKILL.
const (
	DefaultStopAttempts = 50
	DefaultStopInterval = 100 * time.Millisecond
)

// killDrainTimeout is the hard upper bound for waiting on the done channel
// after SIGKILL has been sent (or after the process has already exited).
// SIGKILL cannot be caught, so the process should exit almost immediately.
// This timeout is a safety net against indefinite blocking if cmd.Wait
// never returns (e.g., due to stuck I/O or kernel issues).
const killDrainTimeout = 10 * time.Second

// StopPolicy bounds the graceful phase of a shutdown. After SIGTERM the
// process is polled Attempts times, Interval apart; if it is still alive it
// is sent SIGKILL and reaped.
type StopPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultStopPolicy returns the 50 x 100ms shutdown budget.
func DefaultStopPolicy() StopPolicy {
	return StopPolicy{Attempts: DefaultStopAttempts, Interval: DefaultStopInterval}
}

// Grace returns the total time the process is given to exit after SIGTERM.
func (p StopPolicy) Grace() time.Duration {
	return time.Duration(p.Attempts) * p.Interval
}

// normalized replaces non-positive fields with the defaults.
func (p StopPolicy) normalized() StopPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultStopAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultStopInterval
	}
	return p
}

// drainDone reads from the done channel with the given timeout as a hard
// upper bound. Under normal conditions cmd.Wait returns almost immediately
// after the process exits, so this timeout should never fire.
//
// Returns true and the cmd.Wait error if the channel delivered in time,
// or false and a nil error if the timeout elapsed.
func drainDone(done <-chan error, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}

// stopWithDone implements the SIGTERM-poll-SIGKILL shutdown sequence using a
// pre-existing done channel that already has a goroutine calling cmd.Wait.
// The done channel must receive the result of exactly one cmd.Wait call.
//
// Shutdown flow:
//  1. Send SIGTERM.
//  2. Poll for exit policy.Attempts times, policy.Interval apart.
//  3. If the process is still alive, send SIGKILL and block until it is reaped
//     (bounded by killDrainTimeout).
//
// stopWithDone does not nil cmd or the done channel; the caller does.
func stopWithDone(cmd *exec.Cmd, done <-chan error, policy StopPolicy, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if done == nil {
		return fmt.Errorf("%s: done channel must not be nil", name)
	}
	policy = policy.normalized()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process already exited; drain the wait goroutine.
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out draining process after signal failure", name)
		}
		return expectSignalExit(waitErr, name)
	}

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	for range policy.Attempts {
		select {
		case err := <-done:
			return expectSignalExit(err, name)
		case <-ticker.C:
		}
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("%s: kill after %v grace: %w", name, policy.Grace(), err)
	}
	ok, waitErr := drainDone(done, killDrainTimeout)
	if !ok {
		return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
	}
	return expectSignalExit(waitErr, name)
}

// expectSignalExit interprets an error from cmd.Wait after sending a
// termination signal. Exit errors caused by SIGTERM or SIGKILL are expected
// and treated as successful stops.
func expectSignalExit(err error, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			sig := status.Signal()
			if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}
