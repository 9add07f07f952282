package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"investigator/internal/errs"
	"investigator/internal/infrastructure/persistence/sqlite/model"
	"investigator/internal/ports"
)

// DocumentRepository stores whole JSON documents in the state_documents table.
type DocumentRepository struct {
	db  *gorm.DB
	uow ports.UnitOfWork
	now func() time.Time

	mu sync.Mutex
}

var _ ports.DocumentStore = (*DocumentRepository)(nil)

func NewDocumentRepository(db *gorm.DB, uow ports.UnitOfWork) *DocumentRepository {
	return &DocumentRepository{
		db:  db,
		uow: uow,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *DocumentRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx, ok := ports.TxFromContext(ctx)
	if !ok {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *DocumentRepository) Load(ctx context.Context, key string) (ports.Document, error) {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return ports.Document{}, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Document{}, err
	}
	return loadDocument(db, trimmedKey)
}

// Update runs fn against the current document inside one transaction. The
// mutex serializes writers in this process; the immediate transaction lock
// added by database.Open serializes writers in other processes.
func (r *DocumentRepository) Update(ctx context.Context, key string, fn ports.DocumentMutator) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}
	if fn == nil {
		return errors.New("document mutator is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.uow.WithTx(ctx, func(txCtx context.Context) error {
		db, err := r.dbFromContext(txCtx)
		if err != nil {
			return err
		}

		current, err := loadDocument(db, trimmedKey)
		if err != nil {
			return err
		}

		next, changed, err := fn(current)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		row := model.StateDocument{
			Key:           trimmedKey,
			Value:         next.Value,
			SchemaVersion: next.SchemaVersion,
			UpdatedAt:     r.now().Format(time.RFC3339Nano),
		}
		if err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":          row.Value,
				"schema_version": row.SchemaVersion,
				"updated_at":     row.UpdatedAt,
			}),
		}).Create(&row).Error; err != nil {
			return errs.Wrapf(err, "upsert document %q", trimmedKey)
		}
		return nil
	})
}

func (r *DocumentRepository) Delete(ctx context.Context, key string) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}
	if err := db.Where("key = ?", trimmedKey).Delete(&model.StateDocument{}).Error; err != nil {
		return errs.Wrapf(err, "delete document %q", trimmedKey)
	}
	return nil
}

func loadDocument(db *gorm.DB, key string) (ports.Document, error) {
	var row model.StateDocument
	if err := db.Where("key = ?", key).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Document{Key: key}, nil
		}
		return ports.Document{}, errs.Wrapf(err, "query document %q", key)
	}

	doc := ports.Document{
		Key:           row.Key,
		Value:         row.Value,
		SchemaVersion: row.SchemaVersion,
		Found:         true,
	}
	if updatedAt, err := time.Parse(time.RFC3339Nano, row.UpdatedAt); err == nil {
		doc.UpdatedAt = updatedAt
	}
	return doc, nil
}

func checkKey(ctx context.Context, key string) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return "", errors.New("key is required")
	}
	return trimmedKey, nil
}
