package cmd

import (
	"github.com/spf13/cobra"
)

var (
	deleteOldRDN bool
	newSuperior  string
)

func init() {
	flags := RenameCmd.Flags()

	flags.BoolVar(&deleteOldRDN, "delete-old-rdn", false, "Remove the old RDN value from the entry")
	flags.StringVar(&newSuperior, "new-superior", "", "Move the entry under this DN")
}

var RenameCmd = &cobra.Command{
	Use:   "rename <dn> <new-rdn>",
	Short: "Rename or move an entry",
	Long: `Rename an entry with a modify DN request.

Usage
	ldapws rename cn=alice,ou=people,dc=example,dc=com cn=alice.smith --delete-old-rdn

`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var superior *string
		if cmd.Flags().Changed("new-superior") {
			superior = &newSuperior
		}

		s, _, log, err := connect(ctx, cmd)
		if err != nil {
			return err
		}

		resp, err := s.RenameEntry(ctx, args[0], args[1], deleteOldRDN, superior)
		if err != nil {
			return finish(ctx, s, log, err)
		}

		return finish(ctx, s, log, printResult(cmd.OutOrStdout(), "rename", resp.Result))
	},
}
