package investigation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/infrastructure/metrics"
	"investigator/internal/ports"
)

var (
	errStoreRequired  = errors.New("document store is required")
	errSourceMissing  = errors.New("issue source is not configured")
	errLauncherNeeded = errors.New("worker launcher is not configured")
)

// Dependencies are the collaborators of Service. Store is required; the
// rest may be nil where a command does not need them.
type Dependencies struct {
	Store    ports.DocumentStore
	Source   ports.IssueSource
	Launcher ports.WorkerLauncher
	Probe    ports.ProcessProbe
	Notifier ports.Notifier
	Metrics  *metrics.Metrics
	Runner   InvestigationRunner
	Bots     domain.BotPolicy
}

// Service owns the queue, the ledger and the worker marker.
type Service struct {
	store    ports.DocumentStore
	source   ports.IssueSource
	launcher ports.WorkerLauncher
	probe    ports.ProcessProbe
	notifier ports.Notifier
	metrics  *metrics.Metrics
	runner   InvestigationRunner
	bots     domain.BotPolicy

	now          func() time.Time
	newID        func() string
	storeBackOff func() backoff.BackOff

	scans    singleflight.Group
	launchMu sync.Mutex
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, errStoreRequired
	}
	return &Service{
		store:    deps.Store,
		source:   deps.Source,
		launcher: deps.Launcher,
		probe:    deps.Probe,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		runner:   deps.Runner,
		bots:     deps.Bots,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,

		storeBackOff: defaultStoreBackOff,
	}, nil
}

func (s *Service) logCtx(ctx context.Context) context.Context {
	return logging.WithAttrs(ctx, slog.String("component", "usecase.investigation"))
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return ctx.Err()
}
