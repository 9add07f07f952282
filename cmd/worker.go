package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"investigator/internal/bootstrap"
	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/usecase/investigation"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker runtime commands",
}

var workerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded worker and whether it is alive",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		status, err := svc.Worker(ctx)
		if err != nil {
			return errs.Wrap(err, "read worker status")
		}
		return printJSON(cmd, status)
	}),
}

var workerEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Start a worker if none is alive and the queue has work",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		result, err := svc.EnsureRunning(ctx)
		if err != nil {
			return errs.Wrap(err, "ensure worker")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "worker status=%s pid=%d\n", result.Status, result.PID); err != nil {
			return errs.Wrap(err, "write worker output")
		}
		return nil
	}),
}

var workerDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Investigate queued issues until the queue is empty",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		maxItems, _ := cmd.Flags().GetInt("max-items")
		result, err := svc.Drain(ctx, investigation.DrainInput{MaxItems: maxItems})
		if err != nil {
			return errs.Wrap(err, "drain queue")
		}

		if _, err := fmt.Fprintf(
			cmd.OutOrStdout(),
			"worker drained processed=%d succeeded=%d failed=%d\n",
			result.Processed,
			result.Succeeded,
			result.Failed,
		); err != nil {
			return errs.Wrap(err, "write worker output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerStatusCmd, workerEnsureCmd, workerDrainCmd)

	workerDrainCmd.Flags().Int("max-items", 0, "Stop after this many items (0 drains the queue)")
}
