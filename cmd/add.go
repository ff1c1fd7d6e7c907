package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luma/ldapws/protocol"
)

var addAttributes []string

func init() {
	AddCmd.Flags().StringArrayVarP(&addAttributes, "attr", "a", nil, "Attribute as name=value, repeat for more values")
}

var AddCmd = &cobra.Command{
	Use:   "add <dn>",
	Short: "Add an entry",
	Long: `Add an entry to the directory.

Usage
	ldapws add cn=alice,ou=people,dc=example,dc=com -a objectClass=person -a cn=alice -a sn=Smith

`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		attrs, err := parseAttributes(addAttributes)
		if err != nil {
			return err
		}

		s, _, log, err := connect(ctx, cmd)
		if err != nil {
			return err
		}

		resp, err := s.Add(ctx, args[0], protocol.AttributesFromMap(attrs))
		if err != nil {
			return finish(ctx, s, log, err)
		}

		return finish(ctx, s, log, printResult(cmd.OutOrStdout(), "add", resp.Result))
	},
}

func parseAttributes(pairs []string) (map[string][]string, error) {
	attrs := make(map[string][]string, len(pairs))

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("Attribute %q is not name=value", pair)
		}

		attrs[name] = append(attrs[name], value)
	}

	return attrs, nil
}
