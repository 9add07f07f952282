package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"investigator/internal/bootstrap"
	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/usecase/investigation"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain the investigation ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every investigated issue",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		entries, err := svc.LedgerEntries(ctx)
		if err != nil {
			return errs.Wrap(err, "read ledger")
		}
		for _, entry := range entries {
			if _, err := fmt.Fprintf(
				cmd.OutOrStdout(),
				"%s#%d investigated_at=%s\n",
				entry.Repository,
				entry.IssueNumber,
				entry.InvestigatedAt.Format(time.RFC3339),
			); err != nil {
				return errs.Wrap(err, "write ledger output")
			}
		}
		return nil
	}),
}

var ledgerRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a completed investigation",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		repo, _ := cmd.Flags().GetString("repo")
		issue, _ := cmd.Flags().GetInt("issue")
		atRaw, _ := cmd.Flags().GetString("at")

		var at time.Time
		if atRaw != "" {
			parsed, err := time.Parse(time.RFC3339, atRaw)
			if err != nil {
				return errs.Wrapf(err, "parse --at %q", atRaw)
			}
			at = parsed
		}

		if err := svc.RecordInvestigation(ctx, repo, issue, at); err != nil {
			return errs.Wrap(err, "record investigation")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "recorded %s#%d\n", repo, issue); err != nil {
			return errs.Wrap(err, "write ledger output")
		}
		return nil
	}),
}

var ledgerMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Convert a legacy ledger to timestamped entries",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		result, err := svc.Migrate(ctx)
		if err != nil {
			return errs.Wrap(err, "migrate ledger")
		}
		return printMigration(cmd, result)
	}),
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a ledger file from an older deployment",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		file, _ := cmd.Flags().GetString("file")
		replace, _ := cmd.Flags().GetBool("replace")

		raw, err := os.ReadFile(file)
		if err != nil {
			return errs.Wrapf(err, "read ledger file %q", file)
		}
		result, err := svc.ImportLedger(ctx, string(raw), replace)
		if err != nil {
			return errs.Wrap(err, "import ledger")
		}
		return printMigration(cmd, result)
	}),
}

func printMigration(cmd *cobra.Command, result investigation.MigrationResult) error {
	_, err := fmt.Fprintf(
		cmd.OutOrStdout(),
		"ledger schema=%d migrated=%d repositories=%d already_done=%t\n",
		result.SchemaVersion,
		result.Migrated,
		result.Repositories,
		result.AlreadyDone,
	)
	return errs.Wrap(err, "write ledger output")
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerShowCmd, ledgerRecordCmd, ledgerMigrateCmd, ledgerImportCmd)

	ledgerRecordCmd.Flags().String("repo", "", "Repository as owner/name")
	ledgerRecordCmd.Flags().Int("issue", 0, "Issue number")
	ledgerRecordCmd.Flags().String("at", "", "Investigation time (RFC3339, default now)")
	_ = ledgerRecordCmd.MarkFlagRequired("repo")
	_ = ledgerRecordCmd.MarkFlagRequired("issue")

	ledgerImportCmd.Flags().String("file", "", "Ledger JSON file")
	ledgerImportCmd.Flags().Bool("replace", false, "Replace a non-empty ledger")
	_ = ledgerImportCmd.MarkFlagRequired("file")
}
