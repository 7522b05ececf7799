package rebuild

import "fmt"

// Phase is the position of a pass in the rebuild protocol.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDropped
	PhaseSchemaCreated
	PhasePopulated
	PhaseViewsBuilt
	PhaseCommitted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDropped:
		return "dropped"
	case PhaseSchemaCreated:
		return "schema_created"
	case PhasePopulated:
		return "populated"
	case PhaseViewsBuilt:
		return "views_built"
	case PhaseCommitted:
		return "committed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText renders the phase name in reports.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// next returns the only phase that may follow p.
func (p Phase) next() (Phase, bool) {
	if p >= PhaseCommitted {
		return p, false
	}
	return p + 1, true
}
