// Package netutil provides network utility functions for pgtestenv.
// Its central type, PortRegistry, asks the kernel for an ephemeral TCP port
// on the instance's listen host and tracks ports handed out within the
// process so concurrent constructions never receive the same port.
package netutil
