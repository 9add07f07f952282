package investigation

import (
	"context"
	"log/slog"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
)

// InvestigationOutcome is the combined result of an investigation request
// or an issue-opened event.
type InvestigationOutcome struct {
	Repository  string               `json:"repository"`
	IssueNumber int                  `json:"issue"`
	Enqueue     domain.EnqueueStatus `json:"enqueue"`
	Scan        ScanResult           `json:"scan"`
	Worker      EnsureResult         `json:"worker"`
	QueueLength int                  `json:"queueLength"`
}

type CommentInput struct {
	Repository  string
	IssueNumber int
	Commenter   string
}

type CommentOutcome struct {
	Repository  string               `json:"repository"`
	IssueNumber int                  `json:"issue"`
	Status      domain.CommentStatus `json:"status"`
	Reason      string               `json:"reason,omitempty"`
	Worker      *EnsureResult        `json:"worker,omitempty"`
	QueueLength int                  `json:"queueLength"`
}

type StatusSnapshot struct {
	Queue  domain.Queue         `json:"queue"`
	Ledger []domain.LedgerEntry `json:"ledger"`
	Worker WorkerStatus         `json:"worker"`
}

// RequestInvestigation enqueues (repo, issue) for a first investigation,
// scans the repository for anything else that needs work, and makes sure a
// worker is draining the queue. Only invalid input and storage failures on
// the enqueue return an error; scan and launch problems are reported in the
// outcome.
func (s *Service) RequestInvestigation(ctx context.Context, repo string, issue int) (InvestigationOutcome, error) {
	if err := checkContext(ctx); err != nil {
		return InvestigationOutcome{}, err
	}
	repo, err := domain.ValidateTarget(repo, issue)
	if err != nil {
		return InvestigationOutcome{}, err
	}
	logCtx := logging.WithAttrs(s.logCtx(ctx), slog.String("repo", repo), slog.Int("issue", issue))

	enqueued, err := s.Enqueue(ctx, repo, issue, false)
	if err != nil {
		return InvestigationOutcome{}, err
	}

	outcome := InvestigationOutcome{
		Repository:  repo,
		IssueNumber: issue,
		Enqueue:     enqueued.Status,
		Scan:        s.Scan(ctx, repo),
		Worker:      s.ensureQuietly(ctx),
	}
	outcome.QueueLength = s.queueLengthQuietly(ctx)

	logging.Info(
		logCtx,
		"investigation requested",
		slog.String("enqueue", string(outcome.Enqueue)),
		slog.Bool("scan_failed", outcome.Scan.Failed),
		slog.String("worker", string(outcome.Worker.Status)),
		slog.Int("queue_length", outcome.QueueLength),
	)
	return outcome, nil
}

// IssueOpened handles a newly opened issue the same way as an explicit
// investigation request.
func (s *Service) IssueOpened(ctx context.Context, repo string, issue int) (InvestigationOutcome, error) {
	return s.RequestInvestigation(ctx, repo, issue)
}

// CommentCreated queues a reinvestigation when a human comments on an issue
// that was investigated before. Bot comments and issues never investigated
// are ignored. No scan runs.
func (s *Service) CommentCreated(ctx context.Context, input CommentInput) (CommentOutcome, error) {
	if err := checkContext(ctx); err != nil {
		return CommentOutcome{}, err
	}
	repo, err := domain.ValidateTarget(input.Repository, input.IssueNumber)
	if err != nil {
		return CommentOutcome{}, err
	}
	logCtx := logging.WithAttrs(
		s.logCtx(ctx),
		slog.String("repo", repo),
		slog.Int("issue", input.IssueNumber),
		slog.String("commenter", input.Commenter),
	)

	outcome := CommentOutcome{Repository: repo, IssueNumber: input.IssueNumber}
	ignore := func(reason string) (CommentOutcome, error) {
		outcome.Status = domain.CommentIgnored
		outcome.Reason = reason
		outcome.QueueLength = s.queueLengthQuietly(ctx)
		s.metrics.ObserveComment(string(outcome.Status), reason)
		logging.Info(logCtx, "comment ignored", slog.String("reason", reason))
		return outcome, nil
	}

	if s.bots.IsBot(input.Commenter) {
		return ignore(domain.ReasonBotComment)
	}

	investigated, err := s.IsInvestigated(ctx, repo, input.IssueNumber)
	if err != nil {
		return CommentOutcome{}, errs.Wrap(err, "check ledger")
	}
	if !investigated {
		return ignore(domain.ReasonNotPreviouslyInvestigated)
	}

	enqueued, err := s.Enqueue(ctx, repo, input.IssueNumber, true)
	if err != nil {
		return CommentOutcome{}, err
	}
	outcome.Status = domain.CommentAlreadyQueued
	if enqueued.Added() {
		outcome.Status = domain.CommentQueued
	}

	worker := s.ensureQuietly(ctx)
	outcome.Worker = &worker
	outcome.QueueLength = s.queueLengthQuietly(ctx)
	s.metrics.ObserveComment(string(outcome.Status), "")

	logging.Info(
		logCtx,
		"comment handled",
		slog.String("status", string(outcome.Status)),
		slog.String("worker", string(worker.Status)),
		slog.Int("queue_length", outcome.QueueLength),
	)
	return outcome, nil
}

// Status returns the queue, the full ledger and the worker liveness.
func (s *Service) Status(ctx context.Context) (StatusSnapshot, error) {
	queue, err := s.Snapshot(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	ledger, err := s.LedgerEntries(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	worker, err := s.Worker(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	if ledger == nil {
		ledger = []domain.LedgerEntry{}
	}
	return StatusSnapshot{Queue: queue, Ledger: ledger, Worker: worker}, nil
}

func (s *Service) queueLengthQuietly(ctx context.Context) int {
	n, err := s.QueueLength(ctx)
	if err != nil {
		logging.Warn(s.logCtx(ctx), "queue length unavailable", slog.Any("err", errs.Loggable(err)))
		return 0
	}
	return n
}
