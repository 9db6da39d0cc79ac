package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/pgtestenv/internal/binpath"
	"github.com/giantswarm/pgtestenv/internal/initdb"
	"github.com/giantswarm/pgtestenv/internal/netutil"
	"github.com/giantswarm/pgtestenv/internal/postgres"
	"github.com/giantswarm/pgtestenv/internal/process"
	"github.com/giantswarm/pgtestenv/internal/workspace"
)

// Params holds the parameters for creating a new Instance.
type Params struct {
	Config Config
	// Ports is the shared port registry for cross-instance coordination.
	// Required.
	Ports *netutil.PortRegistry
	// Logger defaults to Logger().
	Logger *slog.Logger
	Hooks  Hooks
}

// Instance is one running database server together with its workspace.
// Only the process that created it (the owner) may tear it down.
//
// Synchronization strategy:
//   - state uses an atomic for lock-free reads.
//   - server, ws and port ownership are only mutated under mu in Stop.
type Instance struct {
	cfg Config

	id       string
	host     string
	port     int
	ownsPort bool // port is reserved in ports by this instance
	user     string
	ownerPID int
	pid      int
	exited   <-chan struct{}

	ws     *workspace.Workspace
	ports  *netutil.PortRegistry
	getpid func() int

	state atomic.Int32

	// mu serializes Stop.
	mu sync.Mutex
	// server is the running server process. Protected by mu.
	server *postgres.Server

	// log is the instance-scoped logger.
	log *slog.Logger
}

// newID returns a short random instance identifier such as "pg-1a2b3c4d".
func newID() string {
	return "pg-" + uuid.NewString()[:8]
}

// New resolves binaries, provisions a workspace, picks a port, initializes
// a cluster, launches the server, and waits until it accepts TCP
// connections. Every failure is returned as an error of one of the kinds in
// errors.go, after everything created so far has been torn down.
//
// ctx bounds construction only (initdb and readiness polling); the server
// keeps running after ctx is done until Stop.
func New(ctx context.Context, p Params) (*Instance, error) {
	if p.Ports == nil {
		return nil, errors.New("port registry must not be nil")
	}
	if err := p.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instance config: %w", err)
	}
	hooks := p.Hooks.withDefaults()
	log := p.Logger
	if log == nil {
		log = Logger()
	}
	id := newID()
	log = log.With("id", id)

	i := &Instance{
		cfg:      p.Config,
		id:       id,
		host:     p.Config.Host,
		user:     p.Config.User,
		ownerPID: hooks.Getpid(),
		ports:    p.Ports,
		getpid:   hooks.Getpid,
		log:      log,
	}
	i.state.Store(int32(StateLaunching))

	if err := i.start(ctx, hooks); err != nil {
		i.state.Store(int32(StateFailed))
		return nil, err
	}
	i.state.Store(int32(StateRunning))
	return i, nil
}

// start runs the construction phases in order. On error, deferred cleanup
// stops the server (if launched), frees the port, and removes the workspace.
func (i *Instance) start(ctx context.Context, hooks Hooks) (retErr error) {
	startTime := time.Now()
	i.log.Debug("starting instance")

	cred, owner, err := dropPrivileges(i.cfg, hooks)
	if err != nil {
		return err
	}

	bins, err := binpath.Resolve(i.cfg.Binaries)
	if err != nil {
		return err
	}
	i.log.Debug("resolved binaries", "initdb", bins.InitDB, "server", bins.Server)

	ws, err := workspace.Create(workspace.Config{
		BaseDir:         i.cfg.BaseDir,
		ID:              i.id,
		SocketPathLimit: i.cfg.SocketPathLimit,
		OwnerPID:        i.ownerPID,
		Owner:           owner,
		Logger:          i.log,
	})
	if err != nil {
		return err
	}
	i.ws = ws
	defer func() {
		if retErr != nil {
			i.teardown()
		}
	}()

	i.port, i.ownsPort = i.pickPort()

	if err := initdb.Run(ctx, initdb.Config{
		Binary:     bins.InitDB,
		DataDir:    ws.DataDir,
		User:       i.user,
		ExtraArgs:  i.cfg.InitDBArgs,
		LogPath:    ws.LogPath,
		Credential: cred,
		Logger:     i.log,
	}); err != nil {
		return err
	}

	server, err := postgres.New(postgres.Config{
		Binary:     bins.Server,
		DataDir:    ws.DataDir,
		Host:       i.host,
		Port:       i.port,
		SocketDir:  ws.SocketDir,
		LogPath:    ws.LogPath,
		Settings:   i.cfg.ServerSettings,
		Credential: cred,
		Logger:     i.log,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	if err := server.Start(); err != nil {
		server.Close()
		return err
	}
	i.server = server
	i.pid = server.PID()
	i.exited = server.Exited()

	if err := server.WaitReady(ctx, i.cfg.Readiness); err != nil {
		return err
	}

	i.log.Info("postgres ready",
		"host", i.host,
		"port", i.port,
		"pid", i.pid,
		"root", ws.Root,
		"elapsed", time.Since(startTime))
	return nil
}

// pickPort returns the configured port, a kernel-assigned free port, or the
// fixed fallback port when no listener can be opened on the host. The
// second result reports whether the port was reserved for this instance;
// a port another instance already holds is used but left to its holder.
func (i *Instance) pickPort() (int, bool) {
	if i.cfg.Port > 0 {
		claimed := i.ports.Claim(i.cfg.Port)
		if !claimed {
			i.log.Warn("port already used by another instance in this process", "port", i.cfg.Port)
		}
		return i.cfg.Port, claimed
	}
	port, err := i.ports.Allocate(i.host)
	if err != nil {
		i.log.Warn("could not allocate a free port; using fallback",
			"host", i.host, "port", netutil.DefaultFallbackPort, "error", err)
		return netutil.DefaultFallbackPort, i.ports.Claim(netutil.DefaultFallbackPort)
	}
	return port, true
}

// Stop terminates the server and removes the workspace. It is idempotent
// and a no-op when called from any process other than the owner, so a
// forked child inheriting the Instance never touches the parent's server.
// Failures are logged, never returned.
func (i *Instance) Stop() {
	if pid := i.getpid(); pid != i.ownerPID {
		i.log.Debug("skipping stop from non-owner process", "pid", pid, "owner_pid", i.ownerPID)
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.State() == StateTerminated {
		return
	}
	i.state.Store(int32(StateTerminating))
	i.teardown()
	i.state.Store(int32(StateTerminated))
}

// teardown stops the server, frees the port, and releases the workspace.
// Callers hold mu or own the Instance exclusively (construction).
func (i *Instance) teardown() {
	if i.server != nil {
		pid := i.server.PID()
		if err := process.StopCloseAndNil(&i.server, i.cfg.Shutdown); err != nil {
			i.log.Warn("stop postgres", "pid", pid, "error", err)
		} else {
			i.log.Debug("postgres stopped", "pid", pid)
		}
	}
	i.pid = 0

	if i.ownsPort {
		i.ports.Release(i.port)
		i.ownsPort = false
	}

	if i.ws != nil {
		if err := i.ws.RemoveFallback(); err != nil {
			i.log.Warn("remove socket directory", "error", err)
		}
		if err := i.ws.Release(i.cfg.KeepWorkspace); err != nil {
			i.log.Warn("release workspace", "error", err)
		}
	}
}

// ID returns the instance's unique identifier.
func (i *Instance) ID() string { return i.id }

// Host returns the TCP listen address.
func (i *Instance) Host() string { return i.host }

// Port returns the TCP listen port.
func (i *Instance) Port() int { return i.port }

// User returns the database superuser name.
func (i *Instance) User() string { return i.user }

// OwnerPID returns the pid of the process that created the instance.
func (i *Instance) OwnerPID() int { return i.ownerPID }

// State returns the current lifecycle state.
func (i *Instance) State() State { return State(i.state.Load()) }

// PID returns the server process id, or 0 once the instance is stopped.
func (i *Instance) PID() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pid
}

// Exited is closed once the server process has exited, through Stop or
// otherwise.
func (i *Instance) Exited() <-chan struct{} { return i.exited }

// RootDir returns the workspace root directory.
func (i *Instance) RootDir() string { return i.ws.Root }

// DataDir returns the cluster data directory.
func (i *Instance) DataDir() string { return i.ws.DataDir }

// SocketDir returns the Unix-domain socket directory.
func (i *Instance) SocketDir() string { return i.ws.SocketDir }

// LogPath returns the combined initdb and server log file.
func (i *Instance) LogPath() string { return i.ws.LogPath }
