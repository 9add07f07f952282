//go:build !unix

package process

import "os"

type SignalProbe struct{}

func NewSignalProbe() SignalProbe { return SignalProbe{} }

// Alive relies on FindProcess opening a handle, which fails for exited pids
// on Windows.
func (SignalProbe) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = process.Release()
	return true
}
