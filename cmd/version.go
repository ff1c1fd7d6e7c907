package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/ldapws/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ldapws %s\n", info.Version)
		fmt.Fprintf(out, "  build:    %s (%s)\n", info.Build, info.Branch)
		fmt.Fprintf(out, "  built at: %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:       %s %s\n", info.GoVersion, info.Platform)

		if info.GoTag != "" {
			fmt.Fprintf(out, "  tags:     %s\n", info.GoTag)
		}

		return nil
	},
}
