//go:build !unix

package process

import "os/exec"

// configureSysProcAttr is a no-op on non-Unix platforms.
func configureSysProcAttr(_ *exec.Cmd, _ *Credential) {}
