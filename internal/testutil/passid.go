package testutil

// FixedPassIDGenerator returns the same pass id every time.
//
// Reports and golden dumps produced with it are byte-identical across
// runs. Unlike rebuild.FixedGenerator, which walks a list of ids, every
// pass shares one id.
//
// Thread-safety: FixedPassIDGenerator is stateless and safe for concurrent use.
type FixedPassIDGenerator struct {
	id string
}

// NewFixedPassIDGenerator creates a generator. An empty id becomes
// "test-pass-default".
func NewFixedPassIDGenerator(id string) *FixedPassIDGenerator {
	if id == "" {
		id = "test-pass-default"
	}
	return &FixedPassIDGenerator{id: id}
}

// Generate implements rebuild.PassIDGenerator.
func (g *FixedPassIDGenerator) Generate() string {
	return g.id
}
