package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"investigator/internal/bootstrap/config"
	"investigator/internal/bootstrap/database"
	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
	githubinfra "investigator/internal/infrastructure/github"
	"investigator/internal/infrastructure/metrics"
	"investigator/internal/infrastructure/notify"
	sqliterepo "investigator/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "investigator/internal/infrastructure/persistence/sqlite/uow"
	"investigator/internal/infrastructure/process"
	"investigator/internal/ports"
	"investigator/internal/usecase/investigation"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(metrics.New),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewDocumentRepository,
			fx.As(new(ports.DocumentStore)),
		),
	),
	fx.Provide(provideIssueSource),
	fx.Provide(provideLauncher),
	fx.Provide(
		fx.Annotate(
			process.NewSignalProbe,
			fx.As(new(ports.ProcessProbe)),
		),
	),
	fx.Provide(provideNotifier),
	fx.Provide(provideRunner),
	fx.Provide(provideService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

// provideDatabase opens the state database and brings its schema up to date
// on start, so every command can assume the tables exist.
func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			return database.Migrate(logging.WithAttrs(startCtx, slog.String("component", "bootstrap.fx")), db)
		},
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB, m *metrics.Metrics) *App {
	return &App{
		Config:  cfg,
		DB:      db,
		Metrics: m,
	}
}

func provideIssueSource(ctx context.Context, cfg config.Config) (ports.IssueSource, error) {
	source, err := githubinfra.NewIssueSource(ctx, cfg.GitHub)
	if err != nil {
		return nil, errs.Wrap(err, "build github issue source")
	}
	return source, nil
}

type launcherParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Ctx        context.Context
	Config     config.Config
	ConfigFile string `name:"configFile"`
}

// provideLauncher builds the detached worker launcher. Without an explicit
// worker.command the running binary is re-executed as "worker drain" with
// the same config file.
func provideLauncher(p launcherParams) (ports.WorkerLauncher, error) {
	spec := process.Spec{
		Program: strings.TrimSpace(p.Config.Worker.Command),
		Args:    p.Config.Worker.Args,
		LogFile: p.Config.Worker.LogFile,
	}
	if spec.Program == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errs.Wrap(err, "resolve worker executable")
		}
		spec.Program = self
		spec.Args = workerDrainArgs(p.ConfigFile)
	}

	launcher := process.NewLauncher(p.Ctx, spec)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(stopCtx context.Context) error {
			// Detached workers keep draining after this process exits.
			if pids := launcher.Running(); len(pids) > 0 {
				logging.Info(
					logging.WithAttrs(stopCtx, slog.String("component", "bootstrap.fx")),
					"workers still running",
					slog.Any("pids", pids),
				)
			}
			return nil
		},
	})
	return launcher, nil
}

func workerDrainArgs(configFile string) []string {
	if strings.TrimSpace(configFile) == "" {
		return []string{"worker", "drain"}
	}
	return []string{"--config", configFile, "worker", "drain"}
}

func provideNotifier(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.Notifier, error) {
	if strings.TrimSpace(cfg.Notify.NATSURL) == "" {
		return notify.Nop{}, nil
	}

	notifier, err := notify.NewNATSNotifier(ctx, cfg.Notify)
	if err != nil {
		return nil, errs.Wrap(err, "connect enqueue notifier")
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return notifier.Close()
		},
	})
	return notifier, nil
}

func provideRunner(cfg config.Config) investigation.InvestigationRunner {
	return investigation.CommandRunner{
		Program: cfg.Worker.InvestigateCommand,
		Timeout: cfg.Worker.InvestigateTimeout,
	}
}

type serviceParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Store     ports.DocumentStore
	Source    ports.IssueSource
	Launcher  ports.WorkerLauncher
	Probe     ports.ProcessProbe
	Notifier  ports.Notifier
	Metrics   *metrics.Metrics
	Runner    investigation.InvestigationRunner
}

// provideService wires the investigation service and migrates a legacy
// ledger once the schema is in place.
func provideService(p serviceParams) (*investigation.Service, error) {
	svc, err := investigation.NewService(investigation.Dependencies{
		Store:    p.Store,
		Source:   p.Source,
		Launcher: p.Launcher,
		Probe:    p.Probe,
		Notifier: p.Notifier,
		Metrics:  p.Metrics,
		Runner:   p.Runner,
		Bots: domain.BotPolicy{
			Suffix: p.Config.Investigation.BotSuffix,
			Logins: p.Config.Investigation.BotLogins,
		},
	})
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := svc.Migrate(ctx); err != nil {
				// A corrupt legacy ledger stays in place for repair; reads
				// treat it as empty.
				logging.Warn(
					logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
					"ledger migration skipped",
					slog.Any("err", errs.Loggable(err)),
				)
			}
			return nil
		},
	})
	return svc, nil
}
