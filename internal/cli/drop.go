package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerattach/internal/rebuild"
)

// DropOptions holds flags for the drop command.
type DropOptions struct {
	*RootOptions
	Rows bool
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DropOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Remove the attachment side-schema",
		Long: `Drop every side table and view. The ledger is not touched.
Dropping a side-schema that does not exist succeeds.

With --rows, delete every side-table row in one transaction and keep the
tables and views. The side-schema must exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrop(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Rows, "rows", false, "delete rows only, keep tables and views")

	return cmd
}

func runDrop(opts *DropOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	s, err := opts.openSession(f)
	if err != nil {
		return err
	}
	defer s.Close()

	driver := rebuild.New(s.store, s.dialect)
	action := "dropped"
	if opts.Rows {
		action = "cleared"
		err = driver.Clear(cmd.Context())
	} else {
		err = driver.Drop(cmd.Context())
	}
	if err != nil {
		return rebuildFailure(f, err)
	}

	ns := s.dialect.Options().Namespace
	return f.Success(map[string]string{"namespace": ns, "action": action},
		fmt.Sprintf("✓ side-schema %s %s", ns, action))
}
