package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/confeval/pkg/decl"
)

func newSchemasCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schemas <declarations.yaml>",
		Short:   "List declared schemas",
		Example: `  confeval schemas app.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decl.LoadFile(args[0])
			if err != nil {
				return report(cmd.ErrOrStderr(), err)
			}
			for _, line := range p.Schemas() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	return cmd
}
