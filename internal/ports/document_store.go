package ports

import (
	"context"
	"time"
)

// Well-known document keys.
const (
	DocumentQueue  = "queue"
	DocumentLedger = "ledger"
	DocumentWorker = "worker"
)

// Document is one persisted JSON document with its schema version tag.
type Document struct {
	Key           string
	Value         string
	SchemaVersion int
	Found         bool
	UpdatedAt     time.Time
}

// DocumentMutator receives the current document and returns the replacement.
// Returning changed=false leaves the stored document untouched.
type DocumentMutator func(current Document) (next Document, changed bool, err error)

// DocumentStore is the durable key/document storage behind the queue, the
// ledger and the worker marker. Update is the single-writer point: every
// read-modify-write cycle on a key runs serialized.
type DocumentStore interface {
	Load(ctx context.Context, key string) (Document, error)
	Update(ctx context.Context, key string, fn DocumentMutator) error
	Delete(ctx context.Context, key string) error
}
