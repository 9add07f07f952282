package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"investigator/internal/bootstrap/config"
	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/infrastructure/persistence/sqlite/model"
)

func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.database"))

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if err := ensureSQLiteDirectory(logCtx, cfg.DSN); err != nil {
			return nil, errs.Wrap(err, "ensure sqlite directory")
		}

		dsn := ImmediateTxLock(cfg.DSN)
		db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, errs.Wrap(err, "open sqlite db")
		}

		// One connection keeps SQLite writers in a single queue.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errs.Wrap(err, "get sql db")
		}
		sqlDB.SetMaxOpenConns(1)

		logging.Info(logCtx, "database opened", slog.String("driver", "sqlite"), slog.String("dsn", dsn))
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// ImmediateTxLock makes every transaction on a file database start with
// BEGIN IMMEDIATE. A deferred transaction that reads and then writes fails
// with SQLITE_BUSY_SNAPSHOT when another process committed in between, and
// busy_timeout does not retry that case. An explicit _txlock is kept.
func ImmediateTxLock(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" || strings.Contains(trimmed, ":memory:") || strings.Contains(trimmed, "_txlock=") {
		return trimmed
	}
	sep := "?"
	if strings.Contains(trimmed, "?") {
		sep = "&"
	}
	return trimmed + sep + "_txlock=immediate"
}

// Migrate creates or updates the state tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	if err := db.WithContext(ctx).AutoMigrate(&model.StateDocument{}); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.database")), "schema migration completed")
	return nil
}

func ensureSQLiteDirectory(ctx context.Context, dsn string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	candidate := strings.TrimSpace(dsn)
	if candidate == "" || strings.Contains(candidate, ":memory:") {
		return nil
	}

	if strings.HasPrefix(strings.ToLower(candidate), "file:") {
		candidate = candidate[len("file:"):]
	}
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}

	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrapf(err, "create sqlite directory %q", dir)
	}

	logging.Debug(ctx, "sqlite directory ensured", slog.String("dir", dir))
	return nil
}
