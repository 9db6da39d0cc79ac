package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/pgtestenv/internal/binpath"
	"github.com/giantswarm/pgtestenv/internal/fakepg"
	"github.com/giantswarm/pgtestenv/internal/netutil"
	"github.com/giantswarm/pgtestenv/internal/postgres"
	"github.com/giantswarm/pgtestenv/internal/process"
	"github.com/giantswarm/pgtestenv/internal/workspace"
)

var testPorts = netutil.NewPortRegistry(nil)

// unprivileged reports a non-root euid so tests behave the same under root.
func unprivileged() int { return 1000 }

// newTestParams returns Params that build an Instance from the fake
// binaries, with the fake server running in mode.
func newTestParams(t *testing.T, mode string) Params {
	t.Helper()
	bin := fakepg.Install(t)

	cfg := DefaultConfig()
	cfg.Binaries = binpath.Config{
		InitDB:    filepath.Join(bin, "initdb"),
		Server:    filepath.Join(bin, "postgres"),
		NoEnv:     true,
		WellKnown: []string{},
	}
	cfg.BaseDir = t.TempDir()
	cfg.ServerSettings = map[string]string{fakepg.ModeSetting: mode}
	cfg.Shutdown = process.StopPolicy{Attempts: 50, Interval: 20 * time.Millisecond}

	return Params{
		Config: cfg,
		Ports:  testPorts,
		Hooks:  Hooks{Geteuid: unprivileged},
	}
}

// mustNew creates an Instance and registers Stop as cleanup.
func mustNew(t *testing.T, p Params) *Instance {
	t.Helper()
	inst, err := New(context.Background(), p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(inst.Stop)
	return inst
}

func reachable(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// requireEmptyDir fails when dir has any entries left.
func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("%s not cleaned up: %v", dir, names)
	}
}

func TestNew_Lifecycle(t *testing.T) {
	t.Parallel()

	p := newTestParams(t, fakepg.ModeListen)
	inst := mustNew(t, p)

	if got := inst.State(); got != StateRunning {
		t.Fatalf("State() = %v, want %v", got, StateRunning)
	}
	if !strings.HasPrefix(inst.ID(), "pg-") || len(inst.ID()) != len("pg-")+8 {
		t.Errorf("ID() = %q, want pg-<8 hex>", inst.ID())
	}
	if inst.Host() != "127.0.0.1" || inst.User() != "postgres" {
		t.Errorf("Host/User = %q/%q, want defaults", inst.Host(), inst.User())
	}
	if inst.Port() <= 0 {
		t.Errorf("Port() = %d, want positive", inst.Port())
	}
	if inst.PID() <= 0 {
		t.Errorf("PID() = %d, want positive", inst.PID())
	}
	if inst.OwnerPID() != os.Getpid() {
		t.Errorf("OwnerPID() = %d, want %d", inst.OwnerPID(), os.Getpid())
	}
	if filepath.Dir(inst.DataDir()) != inst.RootDir() {
		t.Errorf("DataDir() %q not under root %q", inst.DataDir(), inst.RootDir())
	}
	if _, err := os.Stat(filepath.Join(inst.DataDir(), "PG_VERSION")); err != nil {
		t.Errorf("cluster not initialized: %v", err)
	}
	if !reachable(inst.Host(), inst.Port()) {
		t.Fatal("server not reachable after New")
	}

	logData, err := os.ReadFile(inst.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"Success", "ready to accept connections"} {
		if !strings.Contains(string(logData), want) {
			t.Errorf("log should contain %q from initdb and server, got %q", want, logData)
		}
	}

	inst.Stop()

	if got := inst.State(); got != StateTerminated {
		t.Errorf("State() after Stop = %v, want %v", got, StateTerminated)
	}
	if inst.PID() != 0 {
		t.Errorf("PID() after Stop = %d, want 0", inst.PID())
	}
	if reachable(inst.Host(), inst.Port()) {
		t.Error("server still reachable after Stop")
	}
	if _, err := os.Stat(inst.RootDir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("workspace root should be removed, stat err = %v", err)
	}

	// Second Stop is a no-op.
	inst.Stop()
	if got := inst.State(); got != StateTerminated {
		t.Errorf("State() after second Stop = %v", got)
	}
}

func TestNew_ExplicitPort(t *testing.T) {
	t.Parallel()

	scratch := netutil.NewPortRegistry(nil)
	port, err := scratch.Allocate("127.0.0.1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	p := newTestParams(t, fakepg.ModeListen)
	p.Config.Port = port
	inst := mustNew(t, p)

	if inst.Port() != port {
		t.Errorf("Port() = %d, want %d", inst.Port(), port)
	}
}

func TestNew_AutoPortsAreDistinct(t *testing.T) {
	t.Parallel()

	seen := make(map[int]bool)
	for range 5 {
		inst := mustNew(t, newTestParams(t, fakepg.ModeListen))
		port := inst.Port()
		if port <= 1024 || port >= 65536 {
			t.Errorf("Port() = %d, want a port in (1024, 65536)", port)
		}
		if seen[port] {
			t.Errorf("Port() = %d was already handed to a live instance", port)
		}
		seen[port] = true
	}
}

func TestStop_KeepsPortHeldByAnotherInstance(t *testing.T) {
	t.Parallel()

	ports := netutil.NewPortRegistry(nil)
	port, err := ports.Allocate("127.0.0.1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	p := newTestParams(t, fakepg.ModeListen)
	p.Ports = ports
	p.Config.Port = port
	inst, err := New(context.Background(), p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	inst.Stop()

	if ports.Claim(port) {
		t.Errorf("port %d was released by an instance that never reserved it", port)
	}
}

func TestStop_ReleasesOwnPort(t *testing.T) {
	t.Parallel()

	ports := netutil.NewPortRegistry(nil)
	p := newTestParams(t, fakepg.ModeListen)
	p.Ports = ports
	inst, err := New(context.Background(), p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	port := inst.Port()
	inst.Stop()

	if !ports.Claim(port) {
		t.Errorf("port %d still reserved after Stop", port)
	}
}

func TestNew_FallbackSocketDir(t *testing.T) {
	t.Parallel()

	p := newTestParams(t, fakepg.ModeListen)
	p.Config.BaseDir = filepath.Join(t.TempDir(), strings.Repeat("x", 60))
	inst := mustNew(t, p)

	socketDir := inst.SocketDir()
	if strings.HasPrefix(socketDir, inst.RootDir()) {
		t.Fatalf("SocketDir() = %q, want a short directory outside the root", socketDir)
	}
	if len(socketDir) > workspace.DefaultSocketPathLimit {
		t.Errorf("SocketDir() length %d exceeds %d", len(socketDir), workspace.DefaultSocketPathLimit)
	}
	wantPrefix := fmt.Sprintf("%s%d_", workspace.FallbackPrefix, os.Getpid())
	if !strings.HasPrefix(filepath.Base(socketDir), wantPrefix) {
		t.Errorf("SocketDir() = %q, want name prefix %q", socketDir, wantPrefix)
	}

	inst.Stop()
	if _, err := os.Stat(socketDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("fallback socket dir should be removed, stat err = %v", err)
	}
}

func TestNew_KeepWorkspace(t *testing.T) {
	t.Parallel()

	p := newTestParams(t, fakepg.ModeListen)
	p.Config.KeepWorkspace = true
	inst := mustNew(t, p)

	inst.Stop()
	if _, err := os.Stat(inst.LogPath()); err != nil {
		t.Errorf("kept workspace lost its log: %v", err)
	}
}

func TestNew_Failures(t *testing.T) {
	t.Parallel()

	type testCase struct {
		modify  func(t *testing.T, p *Params)
		wantErr error
		check   func(t *testing.T, err error)
	}

	tests := map[string]testCase{
		"binary not found": {
			modify: func(t *testing.T, p *Params) {
				p.Config.Binaries = binpath.Config{Home: t.TempDir(), NoEnv: true, WellKnown: []string{}}
			},
			wantErr: ErrBinaryNotFound,
			check: func(t *testing.T, err error) {
				var nf *BinaryNotFoundError
				if !errors.As(err, &nf) || len(nf.Searched) == 0 {
					t.Errorf("want *BinaryNotFoundError listing searched dirs, got %v", err)
				}
			},
		},
		"init failed": {
			modify: func(_ *testing.T, p *Params) {
				p.Config.InitDBArgs = []string{fakepg.ExitFlag + "1"}
			},
			wantErr: ErrInitFailed,
			check: func(t *testing.T, err error) {
				var ie *InitFailedError
				if !errors.As(err, &ie) || ie.ExitCode != 1 {
					t.Errorf("want *InitFailedError with exit code 1, got %v", err)
				}
			},
		},
		"startup crashed": {
			modify: func(_ *testing.T, p *Params) {
				p.Config.ServerSettings[fakepg.ModeSetting] = fakepg.ModeCrash
			},
			wantErr: ErrStartupCrashed,
			check: func(t *testing.T, err error) {
				var ce *StartupCrashedError
				if !errors.As(err, &ce) || !strings.Contains(ce.Log, "simulated startup crash") {
					t.Errorf("want *StartupCrashedError carrying the log, got %v", err)
				}
			},
		},
		"startup timeout": {
			modify: func(_ *testing.T, p *Params) {
				p.Config.ServerSettings[fakepg.ModeSetting] = fakepg.ModeHang
				p.Config.Readiness = postgres.Readiness{Attempts: 3, Interval: 20 * time.Millisecond}
			},
			wantErr: ErrStartupTimeout,
			check: func(t *testing.T, err error) {
				var te *StartupTimeoutError
				if !errors.As(err, &te) || te.Host != "127.0.0.1" || te.Port <= 0 {
					t.Errorf("want *StartupTimeoutError naming host and port, got %v", err)
				}
			},
		},
		"launch failed": {
			modify: func(t *testing.T, p *Params) {
				// Resolvable but not runnable: an executable file that is not a
				// valid program image for the kernel.
				dir := t.TempDir()
				bad := filepath.Join(dir, "postgres")
				if err := os.WriteFile(bad, []byte("\x00\x01garbage"), 0o755); err != nil {
					t.Fatalf("setup: %v", err)
				}
				p.Config.Binaries.Server = bad
			},
			wantErr: ErrLaunchFailed,
		},
		"workspace error": {
			modify: func(t *testing.T, p *Params) {
				file := filepath.Join(t.TempDir(), "not-a-dir")
				if err := os.WriteFile(file, nil, 0o600); err != nil {
					t.Fatalf("setup: %v", err)
				}
				p.Config.BaseDir = file
			},
			wantErr: ErrWorkspace,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := newTestParams(t, fakepg.ModeListen)
			tc.modify(t, &p)

			inst, err := New(context.Background(), p)
			if err == nil {
				inst.Stop()
				t.Fatal("New() succeeded, want error")
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tc.wantErr)
			}
			if tc.check != nil {
				tc.check(t, err)
			}
			if info, statErr := os.Stat(p.Config.BaseDir); statErr == nil && info.IsDir() {
				requireEmptyDir(t, p.Config.BaseDir)
			}
		})
	}
}

func TestNew_PrivilegeDenied(t *testing.T) {
	t.Parallel()

	asRoot := func() int { return 0 }

	tests := map[string]struct {
		userSet bool
		lookup  func(string) (*user.User, error)
	}{
		"root without explicit user": {},
		"unknown OS account": {
			userSet: true,
			lookup: func(name string) (*user.User, error) {
				return nil, user.UnknownUserError(name)
			},
		},
		"account is root": {
			userSet: true,
			lookup: func(name string) (*user.User, error) {
				return &user.User{Username: name, Uid: "0", Gid: "0"}, nil
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := newTestParams(t, fakepg.ModeListen)
			p.Config.UserSet = tc.userSet
			p.Hooks = Hooks{Geteuid: asRoot, LookupUser: tc.lookup}

			_, err := New(context.Background(), p)
			if !errors.Is(err, ErrPrivilegeDenied) {
				t.Fatalf("New() error = %v, want %v", err, ErrPrivilegeDenied)
			}
			requireEmptyDir(t, p.Config.BaseDir)
		})
	}
}

func TestDropPrivileges(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.UserSet = true
	hooks := Hooks{
		Geteuid: func() int { return 0 },
		LookupUser: func(name string) (*user.User, error) {
			return &user.User{Username: name, Uid: "70", Gid: "71"}, nil
		},
	}.withDefaults()

	cred, owner, err := dropPrivileges(cfg, hooks)
	if err != nil {
		t.Fatalf("dropPrivileges() error: %v", err)
	}
	if cred == nil || cred.UID != 70 || cred.GID != 71 {
		t.Errorf("credential = %+v, want 70/71", cred)
	}
	if owner == nil || owner.UID != 70 || owner.GID != 71 {
		t.Errorf("owner = %+v, want 70/71", owner)
	}

	cred, owner, err = dropPrivileges(cfg, Hooks{Geteuid: unprivileged}.withDefaults())
	if err != nil || cred != nil || owner != nil {
		t.Errorf("unprivileged dropPrivileges() = %v, %v, %v; want all nil", cred, owner, err)
	}
}

func TestStop_NonOwnerIsNoOp(t *testing.T) {
	t.Parallel()

	var pid atomic.Int64
	pid.Store(int64(os.Getpid()))

	p := newTestParams(t, fakepg.ModeListen)
	p.Hooks.Getpid = func() int { return int(pid.Load()) }
	inst := mustNew(t, p)

	// Pretend to be a forked child.
	pid.Store(int64(os.Getpid() + 1))
	inst.Stop()

	if got := inst.State(); got != StateRunning {
		t.Errorf("State() after non-owner Stop = %v, want %v", got, StateRunning)
	}
	if !reachable(inst.Host(), inst.Port()) {
		t.Error("non-owner Stop terminated the server")
	}
	if _, err := os.Stat(inst.RootDir()); err != nil {
		t.Errorf("non-owner Stop removed the workspace: %v", err)
	}

	pid.Store(int64(os.Getpid()))
	inst.Stop()
	if got := inst.State(); got != StateTerminated {
		t.Errorf("State() after owner Stop = %v, want %v", got, StateTerminated)
	}
}

func TestStop_Concurrent(t *testing.T) {
	t.Parallel()

	inst := mustNew(t, newTestParams(t, fakepg.ModeListen))

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(inst.Stop)
	}
	wg.Wait()

	if got := inst.State(); got != StateTerminated {
		t.Errorf("State() = %v, want %v", got, StateTerminated)
	}
}

func TestStop_EscalatesToKill(t *testing.T) {
	t.Parallel()

	p := newTestParams(t, fakepg.ModeIgnoreTerm)
	p.Config.Shutdown = process.StopPolicy{Attempts: 3, Interval: 20 * time.Millisecond}
	inst := mustNew(t, p)

	inst.Stop()
	if reachable(inst.Host(), inst.Port()) {
		t.Error("server survived SIGKILL escalation")
	}
	if inst.PID() != 0 {
		t.Errorf("PID() = %d after Stop, want 0", inst.PID())
	}
}

func TestNew_ConcurrentInstancesAreIsolated(t *testing.T) {
	t.Parallel()

	const n = 4
	instances := make([]*Instance, n)

	g, ctx := errgroup.WithContext(context.Background())
	for idx := range n {
		p := newTestParams(t, fakepg.ModeListen)
		g.Go(func() error {
			inst, err := New(ctx, p)
			if err != nil {
				return err
			}
			instances[idx] = inst
			return nil
		})
	}
	err := g.Wait()
	for _, inst := range instances {
		if inst != nil {
			t.Cleanup(inst.Stop)
		}
	}
	if err != nil {
		t.Fatalf("concurrent New() error: %v", err)
	}

	ports := map[int]bool{}
	roots := map[string]bool{}
	for _, inst := range instances {
		if ports[inst.Port()] {
			t.Errorf("port %d shared between instances", inst.Port())
		}
		if roots[inst.RootDir()] {
			t.Errorf("root %s shared between instances", inst.RootDir())
		}
		ports[inst.Port()] = true
		roots[inst.RootDir()] = true
	}
}

func TestNew_NilPorts(t *testing.T) {
	t.Parallel()

	p := newTestParams(t, fakepg.ModeListen)
	p.Ports = nil
	if _, err := New(context.Background(), p); err == nil {
		t.Fatal("New() with nil port registry should fail")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	p := newTestParams(t, fakepg.ModeListen)
	p.Config.User = ""
	_, err := New(context.Background(), p)
	if err == nil || !strings.Contains(err.Error(), "user must not be empty") {
		t.Fatalf("New() error = %v, want config validation error", err)
	}
}

func TestNew_CanceledDuringReadiness(t *testing.T) {
	t.Parallel()

	p := newTestParams(t, fakepg.ModeHang)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(ctx, p)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("New() error = %v, want %v", err, context.DeadlineExceeded)
	}
	for _, kind := range []error{
		ErrPrivilegeDenied, ErrBinaryNotFound, ErrWorkspace, ErrInitFailed,
		ErrLaunchFailed, ErrStartupCrashed, ErrStartupTimeout,
	} {
		if errors.Is(err, kind) {
			t.Errorf("New() error = %v, matches kind %v", err, kind)
		}
	}
	requireEmptyDir(t, p.Config.BaseDir)
}
