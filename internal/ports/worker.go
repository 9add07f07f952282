package ports

import "context"

// LaunchedProcess describes a worker process that was started detached.
type LaunchedProcess struct {
	PID     int
	Command string
}

// WorkerLauncher starts the external worker without waiting for it.
type WorkerLauncher interface {
	Launch(ctx context.Context) (LaunchedProcess, error)
}

// ProcessProbe reports whether a process id refers to a live process.
type ProcessProbe interface {
	Alive(pid int) bool
}
