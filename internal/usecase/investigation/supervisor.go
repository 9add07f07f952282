package investigation

import (
	"context"
	"log/slog"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
	"investigator/internal/ports"
)

type EnsureResult struct {
	Status domain.EnsureStatus `json:"status"`
	PID    int                 `json:"pid,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type WorkerStatus struct {
	Alive  bool                 `json:"alive"`
	Marker *domain.WorkerMarker `json:"marker,omitempty"`
}

// IsAlive reports whether the recorded worker process still exists. A
// missing or unreadable marker means no worker.
func (s *Service) IsAlive(ctx context.Context) (bool, error) {
	status, err := s.Worker(ctx)
	if err != nil {
		return false, err
	}
	return status.Alive, nil
}

// Worker returns the recorded marker and whether its process is alive.
func (s *Service) Worker(ctx context.Context) (WorkerStatus, error) {
	if err := checkContext(ctx); err != nil {
		return WorkerStatus{}, err
	}
	doc, err := s.store.Load(ctx, ports.DocumentWorker)
	if err != nil {
		return WorkerStatus{}, errs.Wrap(err, "load worker marker")
	}
	if !doc.Found {
		return WorkerStatus{}, nil
	}

	marker, ok, err := domain.DecodeWorkerMarker(doc.Value)
	if err != nil {
		logging.Warn(s.logCtx(ctx), "worker marker is corrupt, treating worker as absent", slog.Any("err", errs.Loggable(err)))
		return WorkerStatus{}, nil
	}
	if !ok {
		return WorkerStatus{}, nil
	}
	return WorkerStatus{
		Alive:  s.probe != nil && s.probe.Alive(marker.PID),
		Marker: &marker,
	}, nil
}

// EnsureRunning starts a worker when none is alive and the queue has work.
// A stale marker is overwritten by the new launch.
func (s *Service) EnsureRunning(ctx context.Context) (EnsureResult, error) {
	if err := checkContext(ctx); err != nil {
		return EnsureResult{}, err
	}
	logCtx := s.logCtx(ctx)

	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	status, err := s.Worker(ctx)
	if err != nil {
		return EnsureResult{}, err
	}
	if status.Alive {
		return EnsureResult{Status: domain.EnsureAlreadyRunning, PID: status.Marker.PID}, nil
	}

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return EnsureResult{}, err
	}
	if len(queue) == 0 {
		return EnsureResult{Status: domain.EnsureNotNeeded}, nil
	}

	if s.launcher == nil {
		return EnsureResult{}, errLauncherNeeded
	}
	if status.Marker != nil {
		logging.Info(logCtx, "worker marker is stale", slog.Int("pid", status.Marker.PID))
	}

	launched, err := s.launcher.Launch(ctx)
	if err != nil {
		s.metrics.ObserveWorker(string(domain.EnsureFailed))
		logging.Error(logCtx, "worker launch failed", slog.Any("err", errs.Loggable(err)))
		return EnsureResult{}, errs.Wrap(err, "launch worker")
	}

	marker := domain.WorkerMarker{
		PID:       launched.PID,
		LaunchID:  s.newID(),
		StartedAt: s.now(),
		Command:   launched.Command,
	}
	raw, err := domain.EncodeWorkerMarker(marker)
	if err != nil {
		return EnsureResult{}, errs.Wrap(err, "encode worker marker")
	}
	err = s.store.Update(ctx, ports.DocumentWorker, func(ports.Document) (ports.Document, bool, error) {
		return ports.Document{Value: raw}, true, nil
	})
	if err != nil {
		// The process is already running, so the launch still counts.
		logging.Error(logCtx, "worker marker write failed", slog.Int("pid", launched.PID), slog.Any("err", errs.Loggable(err)))
	}

	s.metrics.ObserveWorker(string(domain.EnsureStarted))
	logging.Info(
		logCtx,
		"worker started",
		slog.Int("pid", launched.PID),
		slog.String("launch_id", marker.LaunchID),
		slog.Int("queue_length", len(queue)),
	)
	return EnsureResult{Status: domain.EnsureStarted, PID: launched.PID}, nil
}

// ensureQuietly runs EnsureRunning for trigger handlers, where a launch
// failure must not undo the enqueue that already happened.
func (s *Service) ensureQuietly(ctx context.Context) EnsureResult {
	result, err := s.EnsureRunning(ctx)
	if err != nil {
		return EnsureResult{Status: domain.EnsureFailed, Error: err.Error()}
	}
	return result
}
