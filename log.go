package pgtestenv

import (
	"log/slog"

	"github.com/giantswarm/pgtestenv/internal/core"
)

// SetLogger replaces the package-level logger used by pgtestenv.
// This allows applications to integrate pgtestenv logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; pgtestenv only adds the instance "id".
//
// If l is nil, the logger resets to the default: slog.Default() with
// "component" attribute, re-derived on the next Logger() call and then
// cached. Call SetLogger(nil) after slog.SetDefault() to pick up changes.
//
// SetLogger is safe to call concurrently. Instances keep the logger that
// was current when New created them; call it in TestMain before m.Run to
// cover every instance.
//
// Example:
//
//	pgtestenv.SetLogger(myLogger.With("component", "pgtestenv"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}

// Logger returns the current package-level logger.
func Logger() *slog.Logger {
	return core.Logger()
}
