//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr sets Linux-specific process attributes on cmd.
// Pdeathsig makes the child receive SIGTERM when its parent dies, so a test
// binary killed abruptly does not leave a database server behind. A non-nil
// cred runs the child under that uid/gid.
func configureSysProcAttr(cmd *exec.Cmd, cred *Credential) {
	attr := &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
	}
	if cred != nil {
		attr.Credential = &syscall.Credential{Uid: cred.UID, Gid: cred.GID}
	}
	cmd.SysProcAttr = attr
}
