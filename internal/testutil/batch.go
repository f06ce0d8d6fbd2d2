package testutil

// FixedBatchGenerator generates the same batch token every time.
//
// Unlike engine.FixedGenerator which returns tokens in sequence, every
// unbatched action gets the same token. Scenarios use this so a whole run
// can be fetched back with one store.ReadBatch call and so golden traces
// stay byte-identical.
//
// Thread-safety: FixedBatchGenerator is stateless and safe for concurrent use.
type FixedBatchGenerator struct {
	token string
}

// DefaultBatchToken is used when NewFixedBatchGenerator gets an empty token.
const DefaultBatchToken = "test-batch-default"

// NewFixedBatchGenerator creates a fixed batch token generator.
func NewFixedBatchGenerator(token string) *FixedBatchGenerator {
	if token == "" {
		token = DefaultBatchToken
	}
	return &FixedBatchGenerator{token: token}
}

// Generate returns the fixed token. Implements engine.BatchGenerator.
func (g *FixedBatchGenerator) Generate() string {
	return g.token
}
