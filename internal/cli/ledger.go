package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerattach/internal/ledger"
)

// NewLedgerCommand groups the ledger maintenance commands.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Maintain ledger transactions",
		Long: `Import ledger transactions from a YAML fixture or delete them.
Deletes cascade into the side-schema through its foreign keys.`,
	}

	cmd.AddCommand(newLedgerImportCommand(rootOpts))
	cmd.AddCommand(newLedgerDeleteCommand(rootOpts))

	return cmd
}

func newLedgerImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <fixture.yaml>",
		Short: "Import transactions from a YAML fixture",
		Long: `Insert every transaction of a fixture in one database transaction,
creating the ledger table if it does not exist.

Fixture format:
  transactions:
    - id: 100
      kind: asset_issuance
      attachment: {name: gold, quantity: 1000}
    - id: 101
      type: 2
      subtype: 4
      raw: "0x6400000000000000"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			fixture, err := ledger.LoadFixture(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeUsage, "failed to load fixture", err)
			}

			s, err := rootOpts.openSession(f)
			if err != nil {
				return err
			}
			defer s.Close()

			l, err := s.ledger(f)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := l.Migrate(ctx); err != nil {
				return f.Fail(ExitCommandError, ErrCodeLedger, "failed to prepare ledger table", err)
			}
			n, err := l.Import(ctx, fixture)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeLedger, "import failed", err)
			}

			return f.Success(map[string]int{"imported": n},
				fmt.Sprintf("✓ imported %d transactions into %s", n, l.Table()))
		},
	}
}

func newLedgerDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction and, by cascade, its attachment rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeUsage, fmt.Sprintf("invalid transaction id %q", args[0]), nil)
			}

			s, err := rootOpts.openSession(f)
			if err != nil {
				return err
			}
			defer s.Close()

			l, err := s.ledger(f)
			if err != nil {
				return err
			}
			deleted, err := l.Delete(cmd.Context(), id)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeLedger, "delete failed", err)
			}
			if !deleted {
				return f.Fail(ExitCommandError, ErrCodeLedger, fmt.Sprintf("transaction %d not found", id), nil)
			}

			return f.Success(map[string]int64{"deleted": id},
				fmt.Sprintf("✓ deleted transaction %d", id))
		},
	}
}
