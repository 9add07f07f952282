//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// detach puts the child in a new session so terminal signals sent to the
// server's process group do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
