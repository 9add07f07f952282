package investigation

import (
	"context"
	"log/slog"
	"time"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
)

// ScanResult counts the items a scan actually appended to the queue.
type ScanResult struct {
	Repository    string `json:"repository"`
	Open          int    `json:"open"`
	New           int    `json:"new"`
	Reinvestigate int    `json:"reinvestigate"`
	Failed        bool   `json:"failed,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Scan compares the open issues of repo against the ledger. Unknown issues
// are enqueued for a first investigation; issues updated strictly after
// their recorded investigation are enqueued for reinvestigation. Scan never
// returns an error: a failed listing yields zero counts with Failed set.
// Concurrent scans of one repository share a single listing.
func (s *Service) Scan(ctx context.Context, repo string) ScanResult {
	name, err := domain.ParseRepository(repo)
	if err != nil {
		return failedScan(repo, err)
	}

	v, _, _ := s.scans.Do(name, func() (any, error) {
		return s.scan(ctx, name), nil
	})
	return v.(ScanResult)
}

func (s *Service) scan(ctx context.Context, repo string) ScanResult {
	logCtx := logging.WithAttrs(s.logCtx(ctx), slog.String("repo", repo))
	start := time.Now()

	result, err := s.runScan(ctx, repo)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		logging.Warn(logCtx, "scan failed", slog.Any("err", errs.Loggable(err)))
		s.metrics.ObserveScan("failed", 0, 0, elapsed)
		return failedScan(repo, err)
	}

	s.metrics.ObserveScan("ok", result.New, result.Reinvestigate, elapsed)
	logging.Info(
		logCtx,
		"scan completed",
		slog.Int("open", result.Open),
		slog.Int("new", result.New),
		slog.Int("reinvestigate", result.Reinvestigate),
	)
	return result
}

func (s *Service) runScan(ctx context.Context, repo string) (ScanResult, error) {
	if err := checkContext(ctx); err != nil {
		return ScanResult{}, err
	}
	if s.source == nil {
		return ScanResult{}, errSourceMissing
	}

	issues, err := s.source.ListOpenIssues(ctx, repo)
	if err != nil {
		return ScanResult{}, errs.Wrap(err, "list open issues")
	}

	ledger, err := s.loadLedger(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	requests := make([]EnqueueRequest, 0, len(issues))
	for _, issue := range issues {
		at, investigated := ledger.Lookup(repo, issue.Number)
		switch {
		case !investigated:
			requests = append(requests, EnqueueRequest{Repository: repo, IssueNumber: issue.Number})
		case issue.UpdatedAt.After(at):
			requests = append(requests, EnqueueRequest{Repository: repo, IssueNumber: issue.Number, IsReinvestigation: true})
		}
	}

	results, err := s.EnqueueAll(ctx, requests)
	if err != nil {
		return ScanResult{}, err
	}

	out := ScanResult{Repository: repo, Open: len(issues)}
	for i, result := range results {
		if !result.Added() {
			continue
		}
		if requests[i].IsReinvestigation {
			out.Reinvestigate++
		} else {
			out.New++
		}
	}
	return out, nil
}

func failedScan(repo string, err error) ScanResult {
	return ScanResult{Repository: repo, Failed: true, Error: err.Error()}
}
