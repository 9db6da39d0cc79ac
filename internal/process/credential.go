package process

import "os/exec"

// Credential identifies the unprivileged account a child process runs as
// when the supervisor itself runs with root privileges.
type Credential struct {
	UID uint32
	GID uint32
}

// Apply configures cmd to run under cred (nil leaves the current identity)
// and, on Linux, to receive SIGTERM if the supervising process dies.
func Apply(cmd *exec.Cmd, cred *Credential) {
	configureSysProcAttr(cmd, cred)
}
