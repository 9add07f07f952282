package ports

import (
	"context"
	"errors"
	"time"
)

var ErrIssueSourceUnavailable = errors.New("issue source unavailable")

// RemoteIssue is the part of a remote issue the tracker cares about.
type RemoteIssue struct {
	Number    int
	UpdatedAt time.Time
}

// IssueSource is a read-only view of a remote issue tracker.
type IssueSource interface {
	ListOpenIssues(ctx context.Context, repo string) ([]RemoteIssue, error)
	GetIssue(ctx context.Context, repo string, number int) (RemoteIssue, error)
}
