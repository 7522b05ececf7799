package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerattach/internal/export"
)

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Print the content digest of the side-schema",
		Long: `Hash every side-table row as canonical JSON, in table dependency order
and transaction id order within a table. Two side-schemas with the same
content have the same digest regardless of database or insertion order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			s, err := rootOpts.openSession(f)
			if err != nil {
				return err
			}
			defer s.Close()

			sum, err := export.Digest(cmd.Context(), s.store, s.dialect)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to read side-schema", err)
			}
			return f.Success(sum, fmt.Sprintf("%s  %d records", sum.Digest, sum.Records))
		},
	}
}
