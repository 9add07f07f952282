package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"investigator/internal/bootstrap"
	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/usecase/investigation"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Queue open issues that are new or updated since their last investigation",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		repos, _ := cmd.Flags().GetStringSlice("repo")
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		ensure, _ := cmd.Flags().GetBool("ensure-worker")

		runOnce := func() error {
			for _, repo := range repos {
				result := svc.Scan(ctx, repo)
				if _, err := fmt.Fprintf(
					cmd.OutOrStdout(),
					"scan repo=%s open=%d new=%d reinvestigate=%d failed=%t\n",
					result.Repository,
					result.Open,
					result.New,
					result.Reinvestigate,
					result.Failed,
				); err != nil {
					return errs.Wrap(err, "write scan output")
				}
			}
			if !ensure {
				return nil
			}
			worker, err := svc.EnsureRunning(ctx)
			if err != nil {
				logging.Warn(ctx, "worker not started", slog.Any("err", errs.Loggable(err)))
				return nil
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "worker status=%s pid=%d\n", worker.Status, worker.PID); err != nil {
				return errs.Wrap(err, "write scan output")
			}
			return nil
		}

		if !watch {
			return runOnce()
		}

		if interval <= 0 {
			interval = 5 * time.Minute
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := runOnce(); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				logging.Info(ctx, "scan loop stopped")
				return nil
			case <-ticker.C:
			}
		}
	}),
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringSlice("repo", nil, "Repository as owner/name (repeatable)")
	scanCmd.Flags().Bool("watch", false, "Keep scanning on an interval")
	scanCmd.Flags().Duration("interval", 5*time.Minute, "Interval between scans with --watch")
	scanCmd.Flags().Bool("ensure-worker", true, "Start a worker when the queue has work")
	_ = scanCmd.MarkFlagRequired("repo")
}
