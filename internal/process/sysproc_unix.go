//go:build unix && !linux

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr applies cred when set. Pdeathsig (parent-death
// signal) is a Linux-only kernel feature and is not available here.
func configureSysProcAttr(cmd *exec.Cmd, cred *Credential) {
	if cred == nil {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: cred.UID, Gid: cred.GID},
	}
}
