package cmd

import (
	"github.com/spf13/cobra"
)

var DeleteCmd = &cobra.Command{
	Use:   "delete <dn>",
	Short: "Delete a leaf entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, _, log, err := connect(ctx, cmd)
		if err != nil {
			return err
		}

		resp, err := s.Delete(ctx, args[0])
		if err != nil {
			return finish(ctx, s, log, err)
		}

		return finish(ctx, s, log, printResult(cmd.OutOrStdout(), "delete", resp.Result))
	},
}
