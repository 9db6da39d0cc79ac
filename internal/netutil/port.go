package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/giantswarm/pgtestenv/internal/sentinel"
)

// DefaultFallbackPort is the port used when the kernel cannot hand out an
// ephemeral port on the requested host (for example when the host does not
// resolve to a local address yet).
const DefaultFallbackPort = 15432

// ErrListen is returned by Allocate when no socket could be opened on the
// host. Callers decide whether to fall back to DefaultFallbackPort.
const ErrListen = sentinel.Error("listen for free port")

// maxPortRetries is the maximum number of attempts to find a port not already
// in the registry. This guards against pathological cases.
const maxPortRetries = 20

// PortRegistry tracks ports currently reserved by this process. The kernel
// may hand the same ephemeral port to two callers once the first has closed
// its trial listener; the registry turns that into a retry.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates a new PortRegistry ready for use.
// If logger is nil, slog.Default() is used as a fallback.
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		ports: make(map[int]struct{}),
		log:   logger,
	}
}

// reserve attempts to register a port in the registry.
// Returns true if the port was successfully reserved, false if already taken.
func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Claim records an explicitly chosen port (a caller-supplied port or the
// fallback port). It reports false when another instance in this process
// already holds it; the claim is still recorded as in use.
func (r *PortRegistry) Claim(port int) bool {
	return r.reserve(port)
}

// Release removes a port from the registry, allowing it to be reused.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// Allocate asks the kernel for a free TCP port on host, skipping ports
// already in the registry, and returns it registered. The trial listener is
// closed before returning, so the port is only best-effort free: another
// process may bind it before the server does.
//
// An empty host means 127.0.0.1. Failure to open any listener is reported
// wrapping ErrListen.
func (r *PortRegistry) Allocate(host string) (int, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("%w on %s: resolve: %w", ErrListen, host, err)
	}

	for range maxPortRetries {
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return 0, fmt.Errorf("%w on %s: %w", ErrListen, host, err)
		}
		tcpAddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			_ = l.Close()
			return 0, fmt.Errorf("unexpected address type: %T", l.Addr())
		}
		reserved := r.reserve(tcpAddr.Port)
		if closeErr := l.Close(); closeErr != nil {
			r.log.Warn("close listener after port allocation", "port", tcpAddr.Port, "error", closeErr)
		}
		if reserved {
			return tcpAddr.Port, nil
		}
		// Port already in registry, retry to get a different one.
		r.log.Debug("port already in registry, retrying", "port", tcpAddr.Port)
	}
	return 0, fmt.Errorf("allocate unique port: exhausted %d attempts", maxPortRetries)
}
