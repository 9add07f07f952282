package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"investigator/internal/bootstrap/config"
	"investigator/internal/bootstrap/database"
	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/infrastructure/metrics"
)

type App struct {
	Config  config.Config
	DB      *gorm.DB
	Metrics *metrics.Metrics
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := database.Migrate(logCtx, a.DB); err != nil {
		return errs.Wrap(err, "migrate schema")
	}
	return nil
}
