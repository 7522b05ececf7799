package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgerattach/internal/export"
	"github.com/roach88/ledgerattach/internal/rebuild"
)

// VerifyResult is the JSON payload of the verify command.
type VerifyResult struct {
	Idempotent bool   `json:"idempotent"`
	First      string `json:"first"`
	Second     string `json:"second"`
	Records    int    `json:"records"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Rebuild twice and check both passes produce the same side-schema",
		Long: `Run two consecutive rebuilds against the unchanged ledger and compare
the side-schema digest after each. A mismatch means the rebuild is not
deterministic for this ledger.

Exit codes:
  0 - Digests match
  1 - A pass failed or the digests differ
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			s, err := rootOpts.openSession(f)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			driver := rebuild.New(s.store, s.dialect,
				rebuild.WithViews(s.cfg.Rebuild.Views),
				rebuild.WithFetchSize(s.cfg.Rebuild.FetchSize),
			)

			var digests [2]*export.Summary
			for i := range digests {
				if _, err := driver.Run(ctx); err != nil {
					return rebuildFailure(f, err)
				}
				sum, err := export.Digest(ctx, s.store, s.dialect)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeDatabase, "failed to read side-schema", err)
				}
				f.VerboseLog("pass %d: %s (%d records)", i+1, sum.Digest, sum.Records)
				digests[i] = sum
			}

			result := VerifyResult{
				Idempotent: digests[0].Digest == digests[1].Digest,
				First:      digests[0].Digest,
				Second:     digests[1].Digest,
				Records:    digests[1].Records,
			}
			if !result.Idempotent {
				_ = f.Error("NOT_IDEMPOTENT", "side-schema differs between passes", result)
				return NewExitError(ExitFailure, fmt.Sprintf("digest %s != %s", result.First, result.Second))
			}
			return f.Success(result, fmt.Sprintf("✓ rebuild is idempotent: %s  %d records", result.Second, result.Records))
		},
	}
}
