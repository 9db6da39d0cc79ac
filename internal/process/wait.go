package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Sentinel errors returned by WaitReady for invalid configuration and
// process lifecycle conditions. Callers can match these with errors.Is
// through wrapped error chains.
var (
	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = errors.New("interval must be positive")

	// ErrAttemptsNotPositive indicates a non-positive attempt budget.
	ErrAttemptsNotPositive = errors.New("attempts must be positive")

	// ErrProcessExited indicates the process exited before becoming ready.
	ErrProcessExited = errors.New("process exited before becoming ready")

	// ErrAttemptsExhausted indicates every readiness attempt failed while
	// the process stayed alive.
	ErrAttemptsExhausted = errors.New("readiness attempts exhausted")
)

// ReadinessCheck is a function that checks if a process is ready.
// The context is canceled when the caller cancels, allowing checks (e.g.,
// network dials) to exit promptly. The attempt parameter is 1-based.
// It returns true when ready, false to continue polling.
// The error return is for fatal errors that should abort polling.
type ReadinessCheck func(ctx context.Context, attempt int) (ready bool, err error)

// WaitReadyConfig configures the wait behavior.
type WaitReadyConfig struct {
	Interval      time.Duration   // Pause between attempts
	Attempts      int             // Maximum number of checks
	Name          string          // For logging (e.g., "postgres")
	Port          int             // For logging context
	Logger        *slog.Logger    // Optional logger (defaults to slog.Default())
	ProcessExited <-chan struct{} // If non-nil, abort as soon as it is closed
}

// WaitReady runs check up to cfg.Attempts times, cfg.Interval apart, until
// it reports ready. Before every attempt the process is checked for early
// exit, so a crashed process aborts polling with ErrProcessExited instead of
// consuming the whole budget. Exhausting the budget returns
// ErrAttemptsExhausted; a canceled ctx returns the context error.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, check ReadinessCheck) error {
	if cfg.Name == "" {
		return errors.New("wait ready: name must not be empty")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	}
	if cfg.Attempts <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrAttemptsNotPositive)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// attempt is safe to increment without synchronization because
	// PollUntilContextCancel invokes the condition function sequentially.
	attempt := 0
	if err := wait.PollUntilContextCancel(ctx, cfg.Interval, true,
		func(pollCtx context.Context) (bool, error) {
			if exited(cfg.ProcessExited) {
				return false, fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
			}

			attempt++
			ready, err := check(pollCtx, attempt)
			if err != nil {
				return false, err
			}
			if ready {
				log.Debug("wait succeeded", "name", cfg.Name, "port", cfg.Port, "attempt", attempt)
				return true, nil
			}
			if attempt >= cfg.Attempts {
				// The process may have died during the last check.
				if exited(cfg.ProcessExited) {
					return false, fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
				}
				return false, fmt.Errorf("%d attempts at %v: %w", cfg.Attempts, cfg.Interval, ErrAttemptsExhausted)
			}
			return false, nil
		}); err != nil {
		return fmt.Errorf("wait for %s readiness on port %d: %w", cfg.Name, cfg.Port, err)
	}
	return nil
}

// exited reports whether ch has been closed. A nil channel never reports exit.
func exited(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
