package process

// Stoppable represents a process that can be stopped and have its resources closed.
type Stoppable interface {
	Stop(policy StopPolicy) error
	Close()
}

// StopCloseAndNil stops, closes, and nils a Stoppable pointer in a single
// cleanup step. It is safe to call with a nil p or when *p is nil; in both
// cases it returns nil immediately.
//
// P is constrained to both *E and Stoppable, so only pointer types that
// implement Stoppable can be passed and *E is always directly comparable to
// nil. Callers never specify E; the compiler infers it.
//
// Close and nil-out always run even when Stop returns an error. The Stop
// error is still returned to the caller.
//
// Usage:
//
//	var srv *postgres.Server
//	// ... start srv ...
//	err := process.StopCloseAndNil(&srv, process.DefaultStopPolicy())
func StopCloseAndNil[P interface {
	*E
	Stoppable
}, E any](p *P, policy StopPolicy) error {
	if p == nil || *p == nil {
		return nil
	}
	defer func() {
		(*p).Close()
		*p = nil
	}()
	return (*p).Stop(policy)
}
