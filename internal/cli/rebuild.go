package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerattach/internal/attachment"
	"github.com/roach88/ledgerattach/internal/config"
	"github.com/roach88/ledgerattach/internal/metrics"
	"github.com/roach88/ledgerattach/internal/rebuild"
)

// RebuildOptions holds flags for the rebuild command.
type RebuildOptions struct {
	*RootOptions
	NoViews     bool
	MetricsFile string
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RebuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Drop and rebuild the attachment side-schema",
		Long: `Drop the attachment side-schema, recreate every table, decode and
project every ledger attachment, build the per-variant views and commit,
all in one transaction.

Any failure rolls the whole pass back and leaves the previous
side-schema untouched.

Exit codes:
  0 - Pass committed
  1 - Pass failed and was rolled back
  2 - Command error (config, database)

Examples:
  ledgerattach rebuild --db ./ledger.db
  ledgerattach rebuild --driver postgres --db postgres://localhost/ledger
  ledgerattach rebuild --no-views --metrics-file /var/lib/node_exporter/ledgerattach.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoViews, "no-views", false, "skip view materialization")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile (overrides config)")

	return cmd
}

func (o *RebuildOptions) override(cfg *config.Config) {
	if o.NoViews {
		cfg.Rebuild.Views = false
	}
	if o.MetricsFile != "" {
		cfg.Metrics.Textfile = o.MetricsFile
	}
}

func runRebuild(opts *RebuildOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	s, err := opts.openSession(f, opts.override)
	if err != nil {
		return err
	}
	defer s.Close()

	recorder := metrics.New()
	driverOpts := []rebuild.Option{
		rebuild.WithViews(s.cfg.Rebuild.Views),
		rebuild.WithFetchSize(s.cfg.Rebuild.FetchSize),
		rebuild.WithObserver(recorder),
	}

	report, runErr := rebuild.New(s.store, s.dialect, driverOpts...).Run(cmd.Context())

	// Metrics are written for failed passes too.
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			if runErr == nil {
				return f.Fail(ExitCommandError, ErrCodeMetrics, "rebuild committed but metrics were not written", err)
			}
			slog.Error("failed to write metrics", "path", path, "error", err)
		} else {
			f.VerboseLog("metrics written to %s", path)
		}
	}

	if runErr != nil {
		return rebuildFailure(f, runErr)
	}
	return f.Success(report, formatReport(report))
}

// rebuildFailure reports a failed pass. Only *rebuild.Error values are
// rebuild failures; anything else is a command error.
func rebuildFailure(f *OutputFormatter, err error) error {
	var re *rebuild.Error
	if !errors.As(err, &re) {
		return f.Fail(ExitCommandError, ErrCodeDatabase, "rebuild did not run", err)
	}

	details := map[string]any{
		"pass_id": re.PassID,
		"phase":   re.Phase.String(),
	}
	if re.TransactionID != 0 {
		details["transaction_id"] = re.TransactionID
	}
	var ref *rebuild.ReferenceError
	if errors.As(err, &ref) {
		details["table"] = ref.Table
	}
	if re.Statement != "" {
		details["statement"] = re.Statement
	}

	_ = f.Error(string(re.Code), re.Error(), details)
	return WrapExitError(ExitFailure, "rebuild failed", err)
}

func formatReport(r *rebuild.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ rebuild committed (pass %s)\n", r.PassID)
	fmt.Fprintf(&b, "  rows: %d, views: %d, took %s\n", r.Rows, r.Views, r.Duration)
	for _, k := range attachment.Kinds() {
		if n := r.Counts[k]; n > 0 {
			fmt.Fprintf(&b, "  %-24s %d\n", k, n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
