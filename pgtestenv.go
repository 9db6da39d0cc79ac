package pgtestenv

import (
	"context"
	"sync"

	"github.com/giantswarm/pgtestenv/internal/core"
	"github.com/giantswarm/pgtestenv/internal/netutil"
)

// ports is shared by every instance in the process so two concurrent New
// calls never settle on the same port.
var ports = netutil.NewPortRegistry(nil)

// lastErr mirrors the most recent New result for callers that cannot thread
// the returned error through. lastErrMu protects it.
var (
	lastErrMu sync.Mutex
	lastErr   error
)

// Compile-time interface satisfaction check.
var _ Instance = (*instanceWrapper)(nil)

// instanceWrapper wraps core.Instance to implement the Instance interface.
//
// The core.Instance is stored as a named (unexported) field rather than
// embedded to prevent callers from using type assertions to reach internal
// methods that are not part of the public Instance interface.
type instanceWrapper struct {
	inst *core.Instance
}

func (w *instanceWrapper) DSN() string {
	return formatDSN(w.inst.Host(), w.inst.Port())
}

func (w *instanceWrapper) Descriptor() Descriptor {
	return newDescriptor(w.inst.User(), w.inst.Host(), w.inst.Port())
}

func (w *instanceWrapper) ConnString() string {
	return formatConnString(w.inst.User(), w.inst.Host(), w.inst.Port())
}

func (w *instanceWrapper) Env() []string {
	return formatEnv(w.inst.User(), w.inst.Host(), w.inst.Port())
}

func (w *instanceWrapper) ID() string        { return w.inst.ID() }
func (w *instanceWrapper) Host() string      { return w.inst.Host() }
func (w *instanceWrapper) Port() int         { return w.inst.Port() }
func (w *instanceWrapper) User() string      { return w.inst.User() }
func (w *instanceWrapper) PID() int          { return w.inst.PID() }
func (w *instanceWrapper) OwnerPID() int     { return w.inst.OwnerPID() }
func (w *instanceWrapper) RootDir() string   { return w.inst.RootDir() }
func (w *instanceWrapper) DataDir() string   { return w.inst.DataDir() }
func (w *instanceWrapper) SocketDir() string { return w.inst.SocketDir() }
func (w *instanceWrapper) LogPath() string   { return w.inst.LogPath() }

func (w *instanceWrapper) Exited() <-chan struct{} { return w.inst.Exited() }

func (w *instanceWrapper) Running() bool {
	return w.inst.State() == core.StateRunning
}

func (w *instanceWrapper) Stop() {
	w.inst.Stop()
}

// New starts a PostgreSQL server and returns once it accepts TCP
// connections on Host():Port().
//
// Construction runs, in order: the root privilege check, binary lookup,
// workspace creation, port selection, initdb, server launch, and the
// readiness wait. On failure everything created so far is torn down. A
// failed step is reported as one of the Err* kinds in errors.go; an invalid
// configuration or a done ctx is not.
//
// ctx bounds construction only. The server keeps running after ctx is done
// until Stop is called.
//
// Panics if any option receives an invalid value. See individual With*
// functions for constraints.
//
//nolint:ireturn // Returns Instance interface by design for testability (mockable).
func New(ctx context.Context, opts ...Option) (Instance, error) {
	cfg := defaultInstanceConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	inst, err := core.New(ctx, core.Params{
		Config: cfg.toCoreConfig(),
		Ports:  ports,
		Logger: cfg.logger,
		Hooks:  cfg.hooks,
	})
	setLastError(err)
	if err != nil {
		return nil, err
	}
	return &instanceWrapper{inst: inst}, nil
}

func setLastError(err error) {
	lastErrMu.Lock()
	defer lastErrMu.Unlock()
	lastErr = err
}

// LastError returns the error from the most recent New call in this
// process, or nil if it succeeded. Prefer the error New returns; with
// concurrent callers this reports whichever finished last.
func LastError() error {
	lastErrMu.Lock()
	defer lastErrMu.Unlock()
	return lastErr
}
