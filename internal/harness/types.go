package harness

import (
	"github.com/roach88/ledgerattach/internal/canonical"
	"github.com/roach88/ledgerattach/internal/export"
)

// TraceEvent records one executed step. Only fields relevant to the step
// are set; durations and error text are left out so traces stay stable.
type TraceEvent struct {
	Seq  int64
	Step string

	// Rebuild steps.
	PassID        string
	Outcome       string
	Phase         string
	Code          string
	TransactionID int64
	Rows          int
	Views         int

	// Import and delete steps.
	Imported int
	Deleted  int
}

// value renders the event for golden comparison.
func (e TraceEvent) value() canonical.Value {
	obj := canonical.Object{
		"seq":  canonical.Int(e.Seq),
		"step": canonical.String(e.Step),
	}
	switch e.Step {
	case StepRebuild:
		obj["pass_id"] = canonical.String(e.PassID)
		obj["outcome"] = canonical.String(e.Outcome)
		obj["phase"] = canonical.String(e.Phase)
		if e.Outcome == OutcomeCommitted {
			obj["rows"] = canonical.Int(e.Rows)
			obj["views"] = canonical.Int(e.Views)
		} else {
			obj["code"] = canonical.String(e.Code)
			obj["transaction_id"] = canonical.Int(e.TransactionID)
		}
	case StepImport:
		obj["imported"] = canonical.Int(e.Imported)
	case StepDelete:
		obj["deleted"] = canonical.Int(e.Deleted)
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool

	// Trace lists executed steps in order.
	Trace []TraceEvent

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string

	// Dump is the final side-schema export, if the schema exists.
	Dump    []byte
	Summary *export.Summary
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
