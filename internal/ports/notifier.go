package ports

import (
	"context"
	"time"
)

type EnqueuedNotice struct {
	Repository        string    `json:"repository"`
	IssueNumber       int       `json:"issueNumber"`
	IsReinvestigation bool      `json:"isReinvestigation"`
	EnqueuedAt        time.Time `json:"enqueuedAt"`
}

// Notifier announces accepted queue items. Delivery is best effort.
type Notifier interface {
	NotifyEnqueued(ctx context.Context, notice EnqueuedNotice) error
}
