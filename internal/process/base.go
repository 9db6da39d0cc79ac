package process

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/giantswarm/pgtestenv/internal/sentinel"
)

// ErrAlreadyStarted is returned when Start is called on a process that is
// already running. Callers must Stop the process before starting it again.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when SetupAndStart is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when SetupAndStart is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyLogPath is returned when SetupAndStart is called without a log path.
const ErrEmptyLogPath = sentinel.Error("log path must not be empty")

// BaseProcess provides common process lifecycle management for a single
// child whose stdout and stderr are both redirected to one log file.
//
// BaseProcess is not safe for concurrent use. Callers must serialize access
// to all methods; the supervising core.Instance does so with its mutex.
type BaseProcess struct {
	cmd        *exec.Cmd
	waitDone   <-chan error    // receives cmd.Wait result; started once in SetupAndStart
	exited     <-chan struct{} // closed when process exits; readable by multiple goroutines
	logFile    *os.File
	name       string       // process name for logging (e.g., "postgres")
	log        *slog.Logger // logger for operational messages
	stopPolicy StopPolicy   // used by Close when the process was never stopped
}

// NewBaseProcess creates a BaseProcess with the given name, logger, and stop
// policy. The policy is used by Close as a safety net when auto-stopping a
// process that was not explicitly stopped. If logger is nil, slog.Default()
// is used. Panics if name is empty.
func NewBaseProcess(name string, logger *slog.Logger, policy StopPolicy) BaseProcess {
	if name == "" {
		panic("pgtestenv: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProcess{name: name, log: logger, stopPolicy: policy.normalized()}
}

// Stop terminates the process according to policy.
// After Stop returns, IsStarted reports false regardless of whether the stop
// succeeded. Safe to call when the process was never started, was already
// stopped, or has already exited on its own; returns nil in those cases.
func (b *BaseProcess) Stop(policy StopPolicy) error {
	if b.cmd == nil || b.cmd.Process == nil {
		b.cmd = nil
		b.waitDone = nil
		b.exited = nil
		return nil
	}
	pid := b.cmd.Process.Pid
	select {
	case <-b.exited:
		// Already reaped; its exit status is no longer a stop failure.
		b.log.Debug("process exited before stop",
			"process", b.name, "pid", pid, "exit", <-b.waitDone)
		b.cmd = nil
		b.waitDone = nil
		b.exited = nil
		return nil
	default:
	}
	err := stopWithDone(b.cmd, b.waitDone, policy, b.name)
	if err != nil {
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", pid, "error", err)
	}
	b.cmd = nil
	b.waitDone = nil
	b.exited = nil
	return err
}

// Close closes the log file handle. If the process is still running (Stop
// was not called first), Close logs a warning and stops it with the policy
// given to NewBaseProcess.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process.Close called without Stop; stopping automatically",
			"process", b.name)
		if err := b.Stop(b.stopPolicy); err != nil {
			b.log.Warn("auto-stop during Close failed",
				"process", b.name, "error", err)
		}
	}
	if b.logFile != nil {
		_ = b.logFile.Close()
		b.logFile = nil
	}
}

// Logger returns the logger used by this process.
func (b *BaseProcess) Logger() *slog.Logger {
	return b.log
}

// Exited returns a channel that is closed when the process exits. It is safe
// to select on from any number of goroutines. Returns nil if the process has
// not been started or has already been stopped.
func (b *BaseProcess) Exited() <-chan struct{} {
	return b.exited
}

// IsStarted reports whether the process has been started and not yet stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// PID returns the child's process id, or 0 when it is not running.
func (b *BaseProcess) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// SetupAndStart opens the log file, redirects stdout and stderr to it, and
// starts the command in workDir. The cmd must already have its Path and Args
// set. A non-nil cred runs the child under that identity.
//
// A single goroutine calling cmd.Wait is started here so that exactly one Wait
// call is made per process. The resulting channel is consumed by Stop.
//
// Returns ErrAlreadyStarted if the process is already running.
func (b *BaseProcess) SetupAndStart(cmd *exec.Cmd, workDir, logPath string, cred *Credential) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if logPath == "" {
		return ErrEmptyLogPath
	}
	if b.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd.Dir = workDir
	configureSysProcAttr(cmd, cred)

	logFile, err := OpenLogFile(logPath)
	if err != nil {
		return err
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("start %s process: %w", b.name, err)
	}
	b.cmd = cmd
	b.logFile = logFile

	// Two channels are created:
	//   - done (buffered 1): receives the Wait error, consumed once by Stop.
	//   - exited (closed): broadcast signal readable by any number of
	//     goroutines (e.g., WaitReady polling loops) to detect early exit.
	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	b.waitDone = done
	b.exited = exited

	return nil
}
