// Package process provides utilities for managing external process lifecycle.
//
// It defines BaseProcess for common process start/stop behavior, StopPolicy
// for the terminate-poll-kill shutdown sequence, the Stoppable interface,
// StopCloseAndNil for atomic cleanup, WaitReady for attempt-bounded readiness
// polling, and helpers for the combined log file a child process writes to.
package process
