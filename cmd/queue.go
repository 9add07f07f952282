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

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and edit the investigation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending items, oldest first",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		queue, err := svc.Snapshot(ctx)
		if err != nil {
			return errs.Wrap(err, "list queue")
		}
		for _, item := range queue {
			if _, err := fmt.Fprintf(
				cmd.OutOrStdout(),
				"%s#%d enqueued_at=%s reinvestigation=%t\n",
				item.Repository,
				item.IssueNumber,
				item.EnqueuedAt.Format("2006-01-02T15:04:05Z07:00"),
				item.IsReinvestigation,
			); err != nil {
				return errs.Wrap(err, "write queue output")
			}
		}
		return nil
	}),
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Enqueue one issue without scanning or starting a worker",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		repo, _ := cmd.Flags().GetString("repo")
		issue, _ := cmd.Flags().GetInt("issue")
		reinvestigation, _ := cmd.Flags().GetBool("reinvestigation")

		result, err := svc.Enqueue(ctx, repo, issue, reinvestigation)
		if err != nil {
			return errs.Wrap(err, "enqueue")
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s#%d %s\n", result.Repository, result.IssueNumber, result.Status); err != nil {
			return errs.Wrap(err, "write queue output")
		}
		return nil
	}),
}

var queuePopCmd = &cobra.Command{
	Use:   "pop",
	Short: "Remove and print the oldest pending item",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		item, ok, err := svc.Pop(ctx)
		if err != nil {
			return errs.Wrap(err, "pop queue")
		}
		if !ok {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
			return err
		}
		return printJSON(cmd, item)
	}),
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueAddCmd, queuePopCmd)

	queueAddCmd.Flags().String("repo", "", "Repository as owner/name")
	queueAddCmd.Flags().Int("issue", 0, "Issue number")
	queueAddCmd.Flags().Bool("reinvestigation", false, "Queue as a reinvestigation")
	_ = queueAddCmd.MarkFlagRequired("repo")
	_ = queueAddCmd.MarkFlagRequired("issue")
}
