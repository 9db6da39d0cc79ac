package core

import "fmt"

// State is the lifecycle phase of an Instance.
type State int32

const (
	// StateLaunching covers construction: workspace, port, initdb, server
	// start, and readiness polling.
	StateLaunching State = iota
	// StateRunning means the server accepted a TCP connection.
	StateRunning
	// StateFailed means construction failed; partial resources were
	// cleaned up and the Instance was never handed to a caller.
	StateFailed
	// StateTerminating is set while Stop runs.
	StateTerminating
	// StateTerminated is final: the server is reaped and the workspace gone.
	StateTerminated
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
