package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var BindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Check that the configured credentials can bind",
	Long: `Connect and perform a simple bind with the configured DN and password,
or an anonymous bind if none are configured.

Usage
	ldapws bind -H ldap://localhost:389 -D cn=admin,dc=example,dc=com -w secret

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, conf, log, err := connect(ctx, cmd)
		if err != nil {
			return err
		}

		dn := conf.BindDN
		if conf.BindDN == "" && conf.Password == "" {
			// connect leaves anonymous sessions unbound
			dn = "anonymous"

			resp, err := s.Bind(ctx, "", "")
			if err == nil {
				err = resp.Err()
			}
			if err != nil {
				return finish(ctx, s, log, err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Bound as %s (session %s)\n", dn, s.ID())

		return finish(ctx, s, log, nil)
	},
}
