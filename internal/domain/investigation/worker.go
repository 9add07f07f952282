package investigation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkerMarker asserts that a worker process was launched. It is only
// trusted after the pid passes a liveness probe.
type WorkerMarker struct {
	PID       int       `json:"pid"`
	LaunchID  string    `json:"launchId,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Command   string    `json:"command,omitempty"`
}

type EnsureStatus string

const (
	EnsureAlreadyRunning EnsureStatus = "already_running"
	EnsureStarted        EnsureStatus = "started"
	EnsureNotNeeded      EnsureStatus = "not_needed"
	EnsureFailed         EnsureStatus = "failed"
)

func DecodeWorkerMarker(raw string) (WorkerMarker, bool, error) {
	if strings.TrimSpace(raw) == "" {
		return WorkerMarker{}, false, nil
	}

	var marker WorkerMarker
	if err := json.Unmarshal([]byte(raw), &marker); err != nil {
		return WorkerMarker{}, false, fmt.Errorf("%w: worker marker: %v", ErrCorruptDocument, err)
	}
	if marker.PID <= 0 {
		return WorkerMarker{}, false, nil
	}
	return marker, true, nil
}

func EncodeWorkerMarker(marker WorkerMarker) (string, error) {
	raw, err := json.Marshal(marker)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
