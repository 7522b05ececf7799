package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerattach/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	To string
}

// ExportResult is the JSON payload of the export command.
type ExportResult struct {
	Destination string `json:"destination"`
	*export.Summary
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the side-schema as canonical JSON lines",
		Long: `Write every side-table row as one canonical JSON line, in the order
the digest command hashes them. The destination is a local path or a
gs://bucket/object URI. Nothing is left behind if the export fails.

Examples:
  ledgerattach export --to side-schema.jsonl
  ledgerattach export --to gs://ledger-archive/side-schema.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "destination path or gs:// URI (default: config export.destination)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	s, err := opts.openSession(f)
	if err != nil {
		return err
	}
	defer s.Close()

	dest := opts.To
	if dest == "" {
		dest = s.cfg.Export.Destination
	}
	if dest == "" {
		return f.Fail(ExitCommandError, ErrCodeUsage, "no export destination: pass --to or set export.destination", nil)
	}

	sink, err := export.NewSink(dest)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeUsage, "invalid export destination", err)
	}

	sum, err := export.ToSink(cmd.Context(), s.store, s.dialect, sink)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeExport, "export failed", err)
	}

	return f.Success(ExportResult{Destination: sink.String(), Summary: sum},
		fmt.Sprintf("✓ exported %d records to %s\n  digest %s", sum.Records, sink, sum.Digest))
}
