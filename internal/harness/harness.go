package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ledgerattach/internal/export"
	"github.com/roach88/ledgerattach/internal/ledger"
	"github.com/roach88/ledgerattach/internal/rebuild"
	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
	"github.com/roach88/ledgerattach/internal/testutil"
)

// Harness executes one scenario against a private database.
type Harness struct {
	store   *store.Store
	ledger  *ledger.Ledger
	dialect schema.Dialect
	passIDs *testutil.FixedPassIDGenerator
	seq     int64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// The returned error reports infrastructure failures only; unmet
// expectations and assertions are recorded in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.DriverSQLite, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	l, err := ledger.Open(st, schema.DefaultLedgerTable)
	if err != nil {
		return nil, err
	}
	d, err := schema.New(schema.DriverSQLite, schema.Options{})
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:   st,
		ledger:  l,
		dialect: d,
		passIDs: testutil.NewFixedPassIDGenerator(scenario.PassID),
	}

	ctx := context.Background()
	if err := l.Migrate(ctx); err != nil {
		return nil, err
	}
	if len(scenario.Ledger) > 0 {
		if _, err := l.Import(ctx, &ledger.Fixture{Transactions: scenario.Ledger}); err != nil {
			return nil, fmt.Errorf("failed to seed ledger: %w", err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, scenario.Assertions, h.assertionContext()) {
		result.AddError(msg)
	}

	if err := h.dump(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	h.seq++
	event := TraceEvent{Seq: h.seq, Step: step.Kind()}

	switch event.Step {
	case StepRebuild:
		h.rebuild(ctx, index, step.Rebuild, &event, result)
	case StepImport:
		n, err := h.ledger.Import(ctx, &ledger.Fixture{Transactions: step.Import})
		if err != nil {
			return err
		}
		event.Imported = n
	case StepDelete:
		for _, id := range step.Delete {
			deleted, err := h.ledger.Delete(ctx, id)
			if err != nil {
				return err
			}
			if deleted {
				event.Deleted++
			}
		}
	default:
		return fmt.Errorf("empty step")
	}

	result.Trace = append(result.Trace, event)
	return nil
}

// rebuild runs a pass and checks it against the step's expectation.
// A failing pass is an outcome, not an infrastructure error.
func (h *Harness) rebuild(ctx context.Context, index int, step *RebuildStep, event *TraceEvent, result *Result) {
	opts := []rebuild.Option{rebuild.WithPassIDGenerator(h.passIDs)}
	if step.Views != nil {
		opts = append(opts, rebuild.WithViews(*step.Views))
	}

	report, err := rebuild.New(h.store, h.dialect, opts...).Run(ctx)
	if err != nil {
		var re *rebuild.Error
		if !errors.As(err, &re) {
			result.AddError(fmt.Sprintf("steps[%d]: rebuild returned a non-rebuild error: %v", index, err))
			return
		}
		event.PassID = re.PassID
		event.Outcome = OutcomeFailed
		event.Phase = re.Phase.String()
		event.Code = string(re.Code)
		event.TransactionID = re.TransactionID
	} else {
		event.PassID = report.PassID
		event.Outcome = OutcomeCommitted
		event.Phase = report.Phase.String()
		event.Rows = report.Rows
		event.Views = report.Views
	}

	want := step.Expect
	if want == nil {
		want = &Expectation{Outcome: OutcomeCommitted}
	}
	for _, msg := range checkExpectation(*event, *want) {
		result.AddError(fmt.Sprintf("steps[%d]: %s", index, msg))
	}
	if err != nil && want.Outcome == OutcomeCommitted {
		result.AddError(fmt.Sprintf("steps[%d]: %v", index, err))
	}
}

func checkExpectation(got TraceEvent, want Expectation) []string {
	var msgs []string
	if got.Outcome != want.Outcome {
		msgs = append(msgs, fmt.Sprintf("expected outcome %s, got %s", want.Outcome, got.Outcome))
	}
	if want.Code != "" && got.Code != want.Code {
		msgs = append(msgs, fmt.Sprintf("expected code %s, got %q", want.Code, got.Code))
	}
	if want.Phase != "" && got.Phase != want.Phase {
		msgs = append(msgs, fmt.Sprintf("expected phase %s, got %s", want.Phase, got.Phase))
	}
	if want.TransactionID != 0 && got.TransactionID != want.TransactionID {
		msgs = append(msgs, fmt.Sprintf("expected transaction %d, got %d", want.TransactionID, got.TransactionID))
	}
	return msgs
}

func (h *Harness) assertionContext() *AssertionContext {
	return &AssertionContext{Store: h.store, Ledger: h.ledger, Dialect: h.dialect}
}

// dump exports the final side-schema. A schema that was never created
// leaves Dump empty.
func (h *Harness) dump(ctx context.Context, result *Result) error {
	exists, err := tableExists(ctx, h.store, h.dialect.Qualify(schema.Tables()[0].Name))
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	var buf bytes.Buffer
	sum, err := export.Write(ctx, h.store, h.dialect, &buf)
	if err != nil {
		return fmt.Errorf("failed to export final state: %w", err)
	}
	result.Dump = buf.Bytes()
	result.Summary = sum
	return nil
}
