package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerattach/internal/schema"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Dialect string
	Views   bool
	Drop    bool
}

// SchemaResult is the JSON payload of the schema command.
type SchemaResult struct {
	Dialect    string   `json:"dialect"`
	Statements []string `json:"statements"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the side-schema DDL",
		Long: `Print the statements a rebuild would run to create the side-schema.
No database connection is made.

Examples:
  ledgerattach schema
  ledgerattach schema --dialect postgres --views`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "sqlite or postgres (default: configured driver)")
	cmd.Flags().BoolVar(&opts.Views, "views", false, "include view definitions")
	cmd.Flags().BoolVar(&opts.Drop, "drop", false, "include the drop statements that precede creation")

	return cmd
}

func runSchema(opts *SchemaOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.loadConfig(f)
	if err != nil {
		return err
	}

	driver := opts.Dialect
	if driver == "" {
		driver = cfg.Database.Driver
	}
	d, err := dialectFor(cfg, driver)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, "invalid dialect", err)
	}

	var stmts []string
	if opts.Drop {
		stmts = append(stmts, d.DropStatements()...)
	}
	stmts = append(stmts, d.CreateStatements()...)
	if opts.Views {
		stmts = append(stmts, d.ViewStatements()...)
	}

	return f.Success(SchemaResult{Dialect: d.Name(), Statements: stmts},
		strings.TrimRight(schema.Render(stmts), "\n"))
}
