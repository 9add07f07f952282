package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"investigator/internal/errs"
)

func printJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return errs.Wrap(err, "write json output")
	}
	return nil
}
