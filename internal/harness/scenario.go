package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ledgerattach/internal/ledger"
)

// Scenario defines a rebuild scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// PassID is used for every rebuild pass.
	// If empty, defaults to "test-pass-default".
	PassID string `yaml:"pass_id,omitempty"`

	// Ledger seeds the transaction table before the first step.
	Ledger []ledger.FixtureRow `yaml:"ledger,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final side-schema.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of a rebuild, a ledger import or a ledger delete.
type Step struct {
	Rebuild *RebuildStep        `yaml:"rebuild,omitempty"`
	Import  []ledger.FixtureRow `yaml:"import,omitempty"`
	Delete  []int64             `yaml:"delete,omitempty"`
}

// Kind names the step for traces and errors.
func (s Step) Kind() string {
	switch {
	case s.Rebuild != nil:
		return StepRebuild
	case len(s.Import) > 0:
		return StepImport
	case len(s.Delete) > 0:
		return StepDelete
	default:
		return ""
	}
}

// Step kinds.
const (
	StepRebuild = "rebuild"
	StepImport  = "import"
	StepDelete  = "delete"
)

// RebuildStep runs one rebuild pass.
type RebuildStep struct {
	// Views overrides view materialization. Default: enabled.
	Views *bool `yaml:"views,omitempty"`

	// Expect describes the outcome. If nil, the pass must commit.
	Expect *Expectation `yaml:"expect,omitempty"`
}

// Expectation describes a rebuild outcome. Empty fields are not checked.
type Expectation struct {
	// Outcome is "committed" or "failed".
	Outcome       string `yaml:"outcome"`
	Code          string `yaml:"code,omitempty"`
	Phase         string `yaml:"phase,omitempty"`
	TransactionID int64  `yaml:"transaction_id,omitempty"`
}

// Rebuild outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
)

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Table is the unqualified side table name (row_count, row, table_absent).
	Table string `yaml:"table,omitempty"`

	// Count is the expected number of rows (row_count, ledger_count).
	Count int `yaml:"count,omitempty"`

	// Where selects the row (row). All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (row). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount    = "row_count"
	AssertRow         = "row"
	AssertTableAbsent = "table_absent"
	AssertLedgerCount = "ledger_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		set := 0
		if step.Rebuild != nil {
			set++
		}
		if len(step.Import) > 0 {
			set++
		}
		if len(step.Delete) > 0 {
			set++
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of rebuild, import or delete is required", i)
		}
		if step.Rebuild != nil && step.Rebuild.Expect != nil {
			switch step.Rebuild.Expect.Outcome {
			case OutcomeCommitted, OutcomeFailed:
			default:
				return fmt.Errorf("steps[%d].rebuild.expect: outcome must be %q or %q", i, OutcomeCommitted, OutcomeFailed)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRowCount, AssertTableAbsent:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for %s", index, a.Type)
		}
	case AssertRow:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row", index)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for row", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for row", index)
		}
	case AssertLedgerCount:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
