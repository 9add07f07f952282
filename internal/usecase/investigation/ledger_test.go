package investigation

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "investigator/internal/domain/investigation"
	"investigator/internal/ports"
)

func TestRecordInvestigationOverwrites(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	first := testNow.Add(-time.Hour)
	if err := env.svc.RecordInvestigation(ctx, "acme/widgets", 5, first); err != nil {
		t.Fatalf("RecordInvestigation() error = %v", err)
	}
	if err := env.svc.RecordInvestigation(ctx, "acme/widgets", 5, testNow); err != nil {
		t.Fatalf("RecordInvestigation() error = %v", err)
	}

	at, ok, err := env.svc.InvestigatedAt(ctx, "acme/widgets", 5)
	if err != nil || !ok {
		t.Fatalf("InvestigatedAt() = %v, %v", ok, err)
	}
	if !at.Equal(testNow) {
		t.Fatalf("InvestigatedAt() = %s, want %s", at, testNow)
	}

	doc := env.document(t, ports.DocumentLedger)
	if doc.SchemaVersion != domain.LedgerSchemaVersion {
		t.Fatalf("schema version = %d", doc.SchemaVersion)
	}
}

func TestMigrateLegacyLedger(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	env.putDocument(t, ports.DocumentLedger,
		`{"acme/widgets":[1,"2"],"acme/tools":{"9":{"investigatedAt":"2026-01-01T00:00:00Z"}}}`,
		domain.LedgerSchemaLegacy)

	result, err := env.svc.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if result.AlreadyDone || result.Migrated != 2 || result.Repositories != 1 {
		t.Fatalf("Migrate() = %+v", result)
	}

	doc := env.document(t, ports.DocumentLedger)
	if doc.SchemaVersion != domain.LedgerSchemaVersion {
		t.Fatalf("schema version = %d", doc.SchemaVersion)
	}
	want := `{"acme/tools":{"9":{"investigatedAt":"2026-01-01T00:00:00Z"}},"acme/widgets":{"1":{"investigatedAt":"2026-10-19T08:00:00Z"},"2":{"investigatedAt":"2026-10-19T08:00:00Z"}}}`
	if doc.Value != want {
		t.Fatalf("migrated ledger = %s", doc.Value)
	}

	again, err := env.svc.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if !again.AlreadyDone || again.Migrated != 0 {
		t.Fatalf("second Migrate() = %+v", again)
	}
	if env.document(t, ports.DocumentLedger).Value != want {
		t.Fatalf("second migration changed the ledger")
	}
}

func TestMigrateSkipsCurrentVersionWithoutDecoding(t *testing.T) {
	env := setupService(t)
	env.putDocument(t, ports.DocumentLedger, "{garbage", domain.LedgerSchemaVersion)

	result, err := env.svc.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !result.AlreadyDone {
		t.Fatalf("Migrate() = %+v", result)
	}
	if env.document(t, ports.DocumentLedger).Value != "{garbage" {
		t.Fatalf("current-version ledger must be left untouched")
	}
}

func TestMigrateLeavesCorruptLegacyLedger(t *testing.T) {
	env := setupService(t)
	env.putDocument(t, ports.DocumentLedger, `{"acme/widgets":[true]}`, domain.LedgerSchemaLegacy)

	if _, err := env.svc.Migrate(context.Background()); !errors.Is(err, domain.ErrInvalidLegacyItem) {
		t.Fatalf("Migrate() error = %v", err)
	}
	doc := env.document(t, ports.DocumentLedger)
	if doc.Value != `{"acme/widgets":[true]}` || doc.SchemaVersion != domain.LedgerSchemaLegacy {
		t.Fatalf("corrupt legacy ledger was rewritten: %+v", doc)
	}
}

func TestMigrateEmptyStore(t *testing.T) {
	env := setupService(t)

	result, err := env.svc.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !result.AlreadyDone {
		t.Fatalf("Migrate() = %+v", result)
	}
	if env.document(t, ports.DocumentLedger).Found {
		t.Fatalf("Migrate() created a ledger")
	}
}

func TestLegacyLedgerReadsAsInvestigatedBeforeMigration(t *testing.T) {
	env := setupService(t)
	env.putDocument(t, ports.DocumentLedger, `{"acme/widgets":[3]}`, domain.LedgerSchemaLegacy)

	ok, err := env.svc.IsInvestigated(context.Background(), "acme/widgets", 3)
	if err != nil || !ok {
		t.Fatalf("IsInvestigated() = %v, %v", ok, err)
	}
}

func TestCorruptLedgerReadsAsEmpty(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	env.putDocument(t, ports.DocumentLedger, "[]", domain.LedgerSchemaVersion)

	entries, err := env.svc.LedgerEntries(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("LedgerEntries() = %v, %v", entries, err)
	}

	if err := env.svc.RecordInvestigation(ctx, "acme/widgets", 1, testNow); err != nil {
		t.Fatalf("RecordInvestigation() error = %v", err)
	}
	entries, err = env.svc.LedgerEntries(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("LedgerEntries() = %v, %v", entries, err)
	}
}

func TestImportLedger(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	result, err := env.svc.ImportLedger(ctx, `{"acme/widgets":[4,5]}`, false)
	if err != nil {
		t.Fatalf("ImportLedger() error = %v", err)
	}
	if result.Migrated != 2 {
		t.Fatalf("ImportLedger() = %+v", result)
	}

	if _, err := env.svc.ImportLedger(ctx, `{"acme/widgets":[6]}`, false); !errors.Is(err, ErrLedgerNotEmpty) {
		t.Fatalf("ImportLedger() over existing ledger error = %v", err)
	}

	if _, err := env.svc.ImportLedger(ctx, `{"acme/widgets":[6]}`, true); err != nil {
		t.Fatalf("ImportLedger(replace) error = %v", err)
	}
	entries, err := env.svc.LedgerEntries(ctx)
	if err != nil {
		t.Fatalf("LedgerEntries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].IssueNumber != 6 {
		t.Fatalf("LedgerEntries() = %+v", entries)
	}

	if _, err := env.svc.ImportLedger(ctx, `not json`, true); !errors.Is(err, domain.ErrCorruptDocument) {
		t.Fatalf("ImportLedger(bad) error = %v", err)
	}
}
