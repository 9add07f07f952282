package investigation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QueueItem is one pending investigation.
type QueueItem struct {
	Repository        string    `json:"repository"`
	IssueNumber       int       `json:"issueNumber"`
	EnqueuedAt        time.Time `json:"enqueuedAt"`
	IsReinvestigation bool      `json:"isReinvestigation"`
}

// Queue is the ordered pending list, oldest first.
type Queue []QueueItem

type EnqueueStatus string

const (
	EnqueueQueued              EnqueueStatus = "queued"
	EnqueueAlreadyQueued       EnqueueStatus = "already_queued"
	EnqueueAlreadyInvestigated EnqueueStatus = "already_investigated"
)

// Added reports whether the status means a new item was appended.
func (s EnqueueStatus) Added() bool {
	return s == EnqueueQueued
}

// Contains reports whether an item for (repo, issue) is pending, whatever
// its reinvestigation flag.
func (q Queue) Contains(repo string, issue int) bool {
	return q.indexOf(repo, issue) >= 0
}

func (q Queue) indexOf(repo string, issue int) int {
	for i, item := range q {
		if item.IssueNumber == issue && item.Repository == repo {
			return i
		}
	}
	return -1
}

// DecideEnqueue applies the deduplication policy in order: pending items
// win, then completed work is rejected unless this is a reinvestigation.
func DecideEnqueue(queued bool, investigated bool, isReinvestigation bool) EnqueueStatus {
	if queued {
		return EnqueueAlreadyQueued
	}
	if investigated && !isReinvestigation {
		return EnqueueAlreadyInvestigated
	}
	return EnqueueQueued
}

// Pop removes and returns the oldest item.
func (q Queue) Pop() (QueueItem, Queue, bool) {
	if len(q) == 0 {
		return QueueItem{}, q, false
	}
	rest := make(Queue, len(q)-1)
	copy(rest, q[1:])
	return q[0], rest, true
}

func DecodeQueue(raw string) (Queue, error) {
	if strings.TrimSpace(raw) == "" {
		return Queue{}, nil
	}

	var q Queue
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return Queue{}, fmt.Errorf("%w: queue: %v", ErrCorruptDocument, err)
	}
	if q == nil {
		q = Queue{}
	}
	return q, nil
}

func EncodeQueue(q Queue) (string, error) {
	if q == nil {
		q = Queue{}
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
