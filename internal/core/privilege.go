package core

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/giantswarm/pgtestenv/internal/process"
	"github.com/giantswarm/pgtestenv/internal/workspace"
)

// Hooks substitutes process identity lookups. Nil fields use the os and
// os/user implementations.
type Hooks struct {
	Geteuid    func() int
	Getpid     func() int
	LookupUser func(name string) (*user.User, error)
}

func (h Hooks) withDefaults() Hooks {
	if h.Geteuid == nil {
		h.Geteuid = os.Geteuid
	}
	if h.Getpid == nil {
		h.Getpid = os.Getpid
	}
	if h.LookupUser == nil {
		h.LookupUser = user.Lookup
	}
	return h
}

// dropPrivileges decides which account the child processes run as. An
// unprivileged supervisor keeps its own identity (nil results). A root
// supervisor needs an explicitly chosen user that maps to a non-root OS
// account; the server refuses to run as root.
func dropPrivileges(cfg Config, h Hooks) (*process.Credential, *workspace.Owner, error) {
	if h.Geteuid() != 0 {
		return nil, nil, nil
	}
	if !cfg.UserSet {
		return nil, nil, fmt.Errorf("%w: choose an unprivileged OS account to own the cluster", ErrPrivilegeDenied)
	}

	u, err := h.LookupUser(cfg.User)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no OS account for user %q: %w", ErrPrivilegeDenied, cfg.User, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: user %q has non-numeric uid %q", ErrPrivilegeDenied, cfg.User, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: user %q has non-numeric gid %q", ErrPrivilegeDenied, cfg.User, u.Gid)
	}
	if uid == 0 {
		return nil, nil, fmt.Errorf("%w: user %q maps to uid 0", ErrPrivilegeDenied, cfg.User)
	}

	return &process.Credential{UID: uint32(uid), GID: uint32(gid)}, //nolint:gosec // uid/gid come from the passwd database
		&workspace.Owner{UID: uid, GID: gid}, nil
}
