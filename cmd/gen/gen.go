package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate ldapws documentation",
	Long:  `Generate documentation for the ldapws commands`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
