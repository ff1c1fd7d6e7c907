package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/luma/ldapws/session"
)

var (
	baseDN     string
	scopeName  string
	sizeLimit  int
	timeLimit  int
	jsonOutput bool
)

func init() {
	flags := SearchCmd.Flags()

	flags.StringVarP(&baseDN, "base", "b", "", "Base DN of the search")
	flags.StringVarP(&scopeName, "scope", "s", "sub", "One of base, one, sub, children")
	flags.IntVarP(&sizeLimit, "size-limit", "z", session.DefaultSizeLimit, "Maximum number of entries the server should return, 0 for no limit")
	flags.IntVarP(&timeLimit, "time-limit", "l", session.DefaultTimeLimit, "Seconds the server may spend on the search, 0 for no limit")
	flags.BoolVar(&jsonOutput, "json", false, "Print the result as JSON instead of LDIF")
}

var SearchCmd = &cobra.Command{
	Use:   "search [filter]",
	Short: "Search the directory",
	Long: `Search the directory and print the entries found as LDIF.

Usage
	ldapws search -b dc=example,dc=com '(objectClass=person)'

The filter defaults to (objectClass=*).
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		scope, err := session.ParseScope(scopeName)
		if err != nil {
			return err
		}

		filter := "(objectClass=*)"
		if len(args) > 0 {
			filter = args[0]
		}

		s, _, log, err := connect(ctx, cmd)
		if err != nil {
			return err
		}

		result, err := s.Search(ctx, session.SearchParams{
			BaseDN:    baseDN,
			Filter:    filter,
			Scope:     scope,
			SizeLimit: &sizeLimit,
			TimeLimit: &timeLimit,
		})
		if err != nil {
			var protocolErr *session.ProtocolError
			if errors.As(err, &protocolErr) && protocolErr.Partial != nil {
				// Show what did arrive before the connection dropped
				_ = printLDIF(cmd.OutOrStdout(), protocolErr.Partial)
			}
			return finish(ctx, s, log, err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			data, err := searchJSON(result)
			if err != nil {
				return finish(ctx, s, log, err)
			}
			_, err = out.Write(data)
			if err != nil {
				return finish(ctx, s, log, err)
			}
		} else if err := printLDIF(out, result); err != nil {
			return finish(ctx, s, log, err)
		}

		return finish(ctx, s, log, result.Done.Err())
	},
}
