package repository

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"investigator/internal/bootstrap/config"
	"investigator/internal/bootstrap/database"
	"investigator/internal/infrastructure/persistence/sqlite/model"
	sqliteuow "investigator/internal/infrastructure/persistence/sqlite/uow"
	"investigator/internal/ports"
)

func setupDocumentRepository(t *testing.T) *DocumentRepository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "state.sqlite") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&model.StateDocument{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewDocumentRepository(db, sqliteuow.NewUnitOfWork(db))
}

func TestDocumentRepositoryLoadMissingReturnsNotFound(t *testing.T) {
	repo := setupDocumentRepository(t)

	doc, err := repo.Load(context.Background(), ports.DocumentQueue)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Found {
		t.Fatalf("Load() found = true for missing document")
	}
	if doc.Key != ports.DocumentQueue {
		t.Fatalf("Load() key = %q", doc.Key)
	}
}

func TestDocumentRepositoryUpdateWritesAndVersions(t *testing.T) {
	repo := setupDocumentRepository(t)
	ctx := context.Background()

	err := repo.Update(ctx, ports.DocumentLedger, func(current ports.Document) (ports.Document, bool, error) {
		if current.Found {
			t.Fatalf("mutator saw found document on first write")
		}
		return ports.Document{Value: `{"acme/widgets":[1,2]}`, SchemaVersion: 0}, true, nil
	})
	if err != nil {
		t.Fatalf("Update(first) error = %v", err)
	}

	err = repo.Update(ctx, ports.DocumentLedger, func(current ports.Document) (ports.Document, bool, error) {
		if current.Value != `{"acme/widgets":[1,2]}` {
			t.Fatalf("mutator value = %q", current.Value)
		}
		return ports.Document{Value: `{}`, SchemaVersion: 2}, true, nil
	})
	if err != nil {
		t.Fatalf("Update(second) error = %v", err)
	}

	doc, err := repo.Load(ctx, ports.DocumentLedger)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !doc.Found || doc.Value != `{}` || doc.SchemaVersion != 2 {
		t.Fatalf("Load() = %+v", doc)
	}
	if doc.UpdatedAt.IsZero() {
		t.Fatalf("Load() updated_at is zero")
	}
}

func TestDocumentRepositoryUnchangedSkipsWrite(t *testing.T) {
	repo := setupDocumentRepository(t)
	ctx := context.Background()

	if err := repo.Update(ctx, ports.DocumentWorker, func(ports.Document) (ports.Document, bool, error) {
		return ports.Document{Value: `{"pid":1}`}, false, nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	doc, err := repo.Load(ctx, ports.DocumentWorker)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Found {
		t.Fatalf("Load() found = true after unchanged update")
	}
}

func TestDocumentRepositoryMutatorErrorRollsBack(t *testing.T) {
	repo := setupDocumentRepository(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	if err := repo.Update(ctx, ports.DocumentQueue, func(ports.Document) (ports.Document, bool, error) {
		return ports.Document{Value: `[]`}, true, errBoom
	}); !errors.Is(err, errBoom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	doc, err := repo.Load(ctx, ports.DocumentQueue)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Found {
		t.Fatalf("Load() found = true after failed update")
	}
}

func TestDocumentRepositoryConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	repo := setupDocumentRepository(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Update(ctx, "counter", func(current ports.Document) (ports.Document, bool, error) {
				n := 0
				if current.Found {
					parsed, err := strconv.Atoi(current.Value)
					if err != nil {
						return ports.Document{}, false, err
					}
					n = parsed
				}
				return ports.Document{Value: strconv.Itoa(n + 1)}, true, nil
			})
			if err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := repo.Load(ctx, "counter")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Value != strconv.Itoa(writers) {
		t.Fatalf("counter = %q, want %d", doc.Value, writers)
	}
}

func incrementCounter(current ports.Document) (ports.Document, bool, error) {
	n := 0
	if current.Found {
		parsed, err := strconv.Atoi(current.Value)
		if err != nil {
			return ports.Document{}, false, err
		}
		n = parsed
	}
	return ports.Document{Value: strconv.Itoa(n + 1)}, true, nil
}

// Two handles on one file stand in for the server and a worker process.
func TestDocumentRepositoryUpdatesAcrossConnections(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "state.sqlite") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	}

	repos := make([]*DocumentRepository, 0, 2)
	for i := 0; i < 2; i++ {
		db, err := database.Open(ctx, cfg)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			t.Fatalf("get sql db: %v", err)
		}
		t.Cleanup(func() {
			_ = sqlDB.Close()
		})
		if err := database.Migrate(ctx, db); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		repos = append(repos, NewDocumentRepository(db, sqliteuow.NewUnitOfWork(db)))
	}

	const perWriter = 50
	var wg sync.WaitGroup
	for _, repo := range repos {
		wg.Add(1)
		go func(repo *DocumentRepository) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := repo.Update(ctx, "counter", incrementCounter); err != nil {
					t.Errorf("Update() error = %v", err)
					return
				}
			}
		}(repo)
	}
	wg.Wait()

	doc, err := repos[0].Load(ctx, "counter")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Value != strconv.Itoa(2*perWriter) {
		t.Fatalf("counter = %q, want %d", doc.Value, 2*perWriter)
	}
}

func TestDocumentRepositoryRejectsEmptyKey(t *testing.T) {
	repo := setupDocumentRepository(t)
	ctx := context.Background()

	if _, err := repo.Load(ctx, " "); err == nil {
		t.Fatalf("Load() expected error for empty key")
	}
	if err := repo.Update(ctx, "", func(d ports.Document) (ports.Document, bool, error) { return d, false, nil }); err == nil {
		t.Fatalf("Update() expected error for empty key")
	}
	if err := repo.Delete(ctx, ""); err == nil {
		t.Fatalf("Delete() expected error for empty key")
	}
}
