package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ledgerattach/internal/canonical"
)

// Snapshot renders a result for golden comparison: one canonical JSON
// header line with the trace and digest, followed by the final dump.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(canonical.Array, len(result.Trace))
	for i, event := range result.Trace {
		trace[i] = event.value()
	}

	header := canonical.Object{
		"scenario": canonical.String(name),
		"trace":    trace,
		"records":  canonical.Int(0),
		"digest":   canonical.Null{},
	}
	if result.Summary != nil {
		header["records"] = canonical.Int(result.Summary.Records)
		header["digest"] = canonical.String(result.Summary.Digest)
	}

	data, err := canonical.Marshal(header)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')
	return append(data, result.Dump...), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot, err := Snapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)

	return result, nil
}
