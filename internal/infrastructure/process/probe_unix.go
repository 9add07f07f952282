//go:build unix

package process

import (
	"os"
	"syscall"
)

// SignalProbe checks liveness with signal 0. EPERM is reported as not alive:
// a worker launched by this service always runs as the same user.
type SignalProbe struct{}

func NewSignalProbe() SignalProbe { return SignalProbe{} }

func (SignalProbe) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
