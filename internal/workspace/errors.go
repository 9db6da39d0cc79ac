package workspace

import (
	"fmt"

	"github.com/giantswarm/pgtestenv/internal/sentinel"
)

// ErrWorkspace is the kind of error returned when a directory, file, or
// lock in the workspace cannot be created.
const ErrWorkspace = sentinel.Error("workspace error")

// Error describes a failed workspace operation on a path.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrWorkspace, e.Op, e.Path, e.Err)
}

// Unwrap exposes both the error kind and the underlying cause.
func (e *Error) Unwrap() []error { return []error{ErrWorkspace, e.Err} }
