package investigation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"investigator/internal/bootstrap/logging"
	domain "investigator/internal/domain/investigation"
	"investigator/internal/errs"
	"investigator/internal/ports"
)

var ErrLedgerNotEmpty = errors.New("ledger already has entries")

type MigrationResult struct {
	Migrated      int
	Repositories  int
	SchemaVersion int
	AlreadyDone   bool
}

// IsInvestigated reports whether (repo, issue) has a ledger entry.
func (s *Service) IsInvestigated(ctx context.Context, repo string, issue int) (bool, error) {
	_, ok, err := s.InvestigatedAt(ctx, repo, issue)
	return ok, err
}

// InvestigatedAt returns the latest investigation time of (repo, issue).
func (s *Service) InvestigatedAt(ctx context.Context, repo string, issue int) (time.Time, bool, error) {
	if err := checkContext(ctx); err != nil {
		return time.Time{}, false, err
	}
	repo, err := domain.ValidateTarget(repo, issue)
	if err != nil {
		return time.Time{}, false, err
	}

	ledger, err := s.loadLedger(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	at, ok := ledger.Lookup(repo, issue)
	return at, ok, nil
}

// LedgerEntries returns every ledger entry sorted by repository and issue.
func (s *Service) LedgerEntries(ctx context.Context) ([]domain.LedgerEntry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	ledger, err := s.loadLedger(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetLedgerEntries(ledger.Len())
	return ledger.Entries(), nil
}

// Migrate rewrites a ledger stored in the legacy array form to timestamped
// entries sharing one migration time. A document already tagged with the
// current schema version is left alone without being decoded.
func (s *Service) Migrate(ctx context.Context) (MigrationResult, error) {
	if err := checkContext(ctx); err != nil {
		return MigrationResult{}, err
	}
	logCtx := s.logCtx(ctx)

	result := MigrationResult{SchemaVersion: domain.LedgerSchemaVersion}
	err := s.store.Update(ctx, ports.DocumentLedger, func(current ports.Document) (ports.Document, bool, error) {
		if !current.Found || current.SchemaVersion >= domain.LedgerSchemaVersion {
			result.AlreadyDone = true
			return current, false, nil
		}

		legacy, err := domain.DecodeLegacyLedger(current.Value)
		if err != nil {
			// Keep the bytes for manual repair instead of replacing them.
			return current, false, errs.Wrap(err, "decode legacy ledger")
		}

		migrated, converted := legacy.Migrate(s.now())
		raw, err := domain.EncodeLedger(migrated)
		if err != nil {
			return current, false, errs.Wrap(err, "encode ledger")
		}

		result.Migrated = converted
		result.Repositories = len(legacy.Legacy)
		return ports.Document{Value: raw, SchemaVersion: domain.LedgerSchemaVersion}, true, nil
	})
	if err != nil {
		logging.Error(logCtx, "ledger migration failed", slog.Any("err", errs.Loggable(err)))
		return MigrationResult{}, errs.Wrap(err, "migrate ledger")
	}

	if result.AlreadyDone {
		logging.Debug(logCtx, "ledger already at current schema", slog.Int("schema_version", result.SchemaVersion))
	} else {
		logging.Info(
			logCtx,
			"ledger migrated",
			slog.Int("migrated", result.Migrated),
			slog.Int("repositories", result.Repositories),
			slog.Int("schema_version", result.SchemaVersion),
		)
	}
	return result, nil
}

// RecordInvestigation is the worker completion write-back: it creates or
// overwrites the entry for (repo, issue) with at.
func (s *Service) RecordInvestigation(ctx context.Context, repo string, issue int, at time.Time) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	repo, err := domain.ValidateTarget(repo, issue)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = s.now()
	}
	logCtx := logging.WithAttrs(s.logCtx(ctx), slog.String("repo", repo), slog.Int("issue", issue))

	err = s.store.Update(ctx, ports.DocumentLedger, func(current ports.Document) (ports.Document, bool, error) {
		ledger := s.decodeLedger(logCtx, current)
		ledger.Record(repo, issue, at)

		raw, err := domain.EncodeLedger(ledger)
		if err != nil {
			return current, false, errs.Wrap(err, "encode ledger")
		}
		return ports.Document{Value: raw, SchemaVersion: domain.LedgerSchemaVersion}, true, nil
	})
	if err != nil {
		return errs.Wrap(err, "record investigation")
	}

	logging.Info(logCtx, "investigation recorded", slog.Time("investigated_at", at))
	return nil
}

// ImportLedger stores raw (a ledger file from an older deployment, in either
// format) as a legacy document and migrates it.
func (s *Service) ImportLedger(ctx context.Context, raw string, replace bool) (MigrationResult, error) {
	if err := checkContext(ctx); err != nil {
		return MigrationResult{}, err
	}
	if _, err := domain.DecodeLegacyLedger(raw); err != nil {
		return MigrationResult{}, errs.Wrap(err, "validate imported ledger")
	}

	err := s.store.Update(ctx, ports.DocumentLedger, func(current ports.Document) (ports.Document, bool, error) {
		if current.Found && !replace {
			existing := s.decodeLedger(s.logCtx(ctx), current)
			if existing.Len() > 0 {
				return current, false, ErrLedgerNotEmpty
			}
		}
		return ports.Document{Value: raw, SchemaVersion: domain.LedgerSchemaLegacy}, true, nil
	})
	if err != nil {
		return MigrationResult{}, errs.Wrap(err, "import ledger")
	}
	return s.Migrate(ctx)
}

func (s *Service) loadLedger(ctx context.Context) (domain.Ledger, error) {
	doc, err := s.store.Load(ctx, ports.DocumentLedger)
	if err != nil {
		return nil, errs.Wrap(err, "load ledger")
	}
	return s.decodeLedger(s.logCtx(ctx), doc), nil
}

// decodeLedger never fails: an undecodable document reads as empty. A
// document that missed its migration is upgraded in memory.
func (s *Service) decodeLedger(ctx context.Context, doc ports.Document) domain.Ledger {
	if !doc.Found {
		return domain.Ledger{}
	}

	if doc.SchemaVersion >= domain.LedgerSchemaVersion {
		ledger, err := domain.DecodeLedger(doc.Value)
		if err != nil {
			logging.Warn(ctx, "ledger document is corrupt, using empty ledger", slog.Any("err", errs.Loggable(err)))
			return domain.Ledger{}
		}
		return ledger
	}

	legacy, err := domain.DecodeLegacyLedger(doc.Value)
	if err != nil {
		logging.Warn(ctx, "legacy ledger document is corrupt, using empty ledger", slog.Any("err", errs.Loggable(err)))
		return domain.Ledger{}
	}
	ledger, _ := legacy.Migrate(s.now())
	return ledger
}
