package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"investigator/internal/bootstrap"
	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
	"investigator/internal/usecase/investigation"
)

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Request an investigation of one issue",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *investigation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		repo, _ := cmd.Flags().GetString("repo")
		issue, _ := cmd.Flags().GetInt("issue")

		out, err := svc.RequestInvestigation(ctx, repo, issue)
		if err != nil {
			return errs.Wrap(err, "request investigation")
		}
		return printJSON(cmd, out)
	}),
}

func init() {
	rootCmd.AddCommand(investigateCmd)
	investigateCmd.Flags().String("repo", "", "Repository as owner/name")
	investigateCmd.Flags().Int("issue", 0, "Issue number")
	_ = investigateCmd.MarkFlagRequired("repo")
	_ = investigateCmd.MarkFlagRequired("issue")
}
