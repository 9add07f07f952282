package investigation

import (
	"context"
	"log/slog"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
	"investigator/internal/ports"
)

type EnqueueRequest struct {
	Repository        string
	IssueNumber       int
	IsReinvestigation bool
}

type EnqueueResult struct {
	Repository  string               `json:"repository"`
	IssueNumber int                  `json:"issue"`
	Status      domain.EnqueueStatus `json:"status"`
}

func (r EnqueueResult) Added() bool {
	return r.Status.Added()
}

// IsQueued reports whether an item for (repo, issue) is pending.
func (s *Service) IsQueued(ctx context.Context, repo string, issue int) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	repo, err := domain.ValidateTarget(repo, issue)
	if err != nil {
		return false, err
	}

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return false, err
	}
	return queue.Contains(repo, issue), nil
}

// Enqueue appends (repo, issue) unless it is already pending or, for a
// first investigation, already in the ledger.
func (s *Service) Enqueue(ctx context.Context, repo string, issue int, isReinvestigation bool) (EnqueueResult, error) {
	results, err := s.EnqueueAll(ctx, []EnqueueRequest{{
		Repository:        repo,
		IssueNumber:       issue,
		IsReinvestigation: isReinvestigation,
	}})
	if err != nil {
		return EnqueueResult{}, err
	}
	return results[0], nil
}

// EnqueueAll applies the enqueue policy to every request in one queue write.
// Requests are decided in order, so a batch never holds duplicates. Either
// every accepted item is persisted or none is.
func (s *Service) EnqueueAll(ctx context.Context, requests []EnqueueRequest) ([]EnqueueResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	normalized := make([]EnqueueRequest, 0, len(requests))
	for _, req := range requests {
		repo, err := domain.ValidateTarget(req.Repository, req.IssueNumber)
		if err != nil {
			return nil, err
		}
		req.Repository = repo
		normalized = append(normalized, req)
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	// The ledger is read before the queue transaction; the store allows one
	// writer at a time and must not be re-entered from a mutator.
	ledger, err := s.loadLedger(ctx)
	if err != nil {
		return nil, err
	}

	logCtx := s.logCtx(ctx)
	results := make([]EnqueueResult, 0, len(normalized))
	var accepted []domain.QueueItem
	queueLen := 0

	err = s.store.Update(ctx, ports.DocumentQueue, func(current ports.Document) (ports.Document, bool, error) {
		results = results[:0]
		accepted = accepted[:0]

		queue := s.decodeQueue(logCtx, current)
		enqueuedAt := s.now()
		for _, req := range normalized {
			status := domain.DecideEnqueue(
				queue.Contains(req.Repository, req.IssueNumber),
				ledger.Has(req.Repository, req.IssueNumber),
				req.IsReinvestigation,
			)
			results = append(results, EnqueueResult{
				Repository:  req.Repository,
				IssueNumber: req.IssueNumber,
				Status:      status,
			})
			if !status.Added() {
				continue
			}
			item := domain.QueueItem{
				Repository:        req.Repository,
				IssueNumber:       req.IssueNumber,
				EnqueuedAt:        enqueuedAt,
				IsReinvestigation: req.IsReinvestigation,
			}
			queue = append(queue, item)
			accepted = append(accepted, item)
		}
		queueLen = len(queue)

		if len(accepted) == 0 {
			return current, false, nil
		}
		raw, err := domain.EncodeQueue(queue)
		if err != nil {
			return current, false, errs.Wrap(err, "encode queue")
		}
		return ports.Document{Value: raw, SchemaVersion: current.SchemaVersion}, true, nil
	})
	if err != nil {
		return nil, errs.Wrap(err, "enqueue")
	}

	for i, result := range results {
		s.metrics.ObserveEnqueue(string(result.Status), normalized[i].IsReinvestigation)
		logging.Debug(
			logCtx,
			"enqueue decided",
			slog.String("repo", result.Repository),
			slog.Int("issue", result.IssueNumber),
			slog.String("status", string(result.Status)),
		)
	}
	s.metrics.SetQueueLength(queueLen)
	for _, item := range accepted {
		s.notifyEnqueued(ctx, item)
	}
	return results, nil
}

// Pop removes and returns the oldest pending item. ok is false when the
// queue is empty.
func (s *Service) Pop(ctx context.Context) (domain.QueueItem, bool, error) {
	if err := checkContext(ctx); err != nil {
		return domain.QueueItem{}, false, err
	}
	logCtx := s.logCtx(ctx)

	var (
		item     domain.QueueItem
		ok       bool
		queueLen int
	)
	err := s.store.Update(ctx, ports.DocumentQueue, func(current ports.Document) (ports.Document, bool, error) {
		queue := s.decodeQueue(logCtx, current)
		var rest domain.Queue
		item, rest, ok = queue.Pop()
		queueLen = len(rest)
		if !ok {
			return current, false, nil
		}
		raw, err := domain.EncodeQueue(rest)
		if err != nil {
			return current, false, errs.Wrap(err, "encode queue")
		}
		return ports.Document{Value: raw, SchemaVersion: current.SchemaVersion}, true, nil
	})
	if err != nil {
		return domain.QueueItem{}, false, errs.Wrap(err, "pop queue")
	}

	s.metrics.SetQueueLength(queueLen)
	return item, ok, nil
}

// Snapshot returns the pending items, oldest first.
func (s *Service) Snapshot(ctx context.Context) (domain.Queue, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	queue, err := s.loadQueue(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetQueueLength(len(queue))
	return queue, nil
}

func (s *Service) QueueLength(ctx context.Context) (int, error) {
	queue, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}

func (s *Service) loadQueue(ctx context.Context) (domain.Queue, error) {
	doc, err := s.store.Load(ctx, ports.DocumentQueue)
	if err != nil {
		return nil, errs.Wrap(err, "load queue")
	}
	return s.decodeQueue(s.logCtx(ctx), doc), nil
}

func (s *Service) decodeQueue(ctx context.Context, doc ports.Document) domain.Queue {
	if !doc.Found {
		return domain.Queue{}
	}
	queue, err := domain.DecodeQueue(doc.Value)
	if err != nil {
		logging.Warn(ctx, "queue document is corrupt, using empty queue", slog.Any("err", errs.Loggable(err)))
		return domain.Queue{}
	}
	return queue
}

func (s *Service) notifyEnqueued(ctx context.Context, item domain.QueueItem) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifyEnqueued(ctx, ports.EnqueuedNotice{
		Repository:        item.Repository,
		IssueNumber:       item.IssueNumber,
		IsReinvestigation: item.IsReinvestigation,
		EnqueuedAt:        item.EnqueuedAt,
	})
	if err != nil {
		logging.Warn(
			s.logCtx(ctx),
			"enqueue notification failed",
			slog.String("issue", domain.IssueKey(item.Repository, item.IssueNumber)),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}
