package planner

// #region config
// Config bounds the plan a Planner may produce.
type Config struct {
	MaxSubQueries     int // upper bound on fan-out
	MaxTopicLength    int // runes; longer topics are rejected
	MaxSubQueryLength int // runes; longer sub-queries are cut at a word boundary
}

// DefaultConfig returns the planner limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxSubQueries:     5,
		MaxTopicLength:    500,
		MaxSubQueryLength: 200,
	}
}

// #endregion config

// #region decomposer
// Decomposer expands a validated topic into candidate sub-query texts.
// Candidates may be unnormalized or repeated; the Planner cleans them up.
// Implementations must be deterministic and free of I/O.
type Decomposer interface {
	Decompose(topic string) []string
}

// DecomposerFunc adapts a function to Decomposer.
type DecomposerFunc func(topic string) []string

// Decompose calls f.
func (f DecomposerFunc) Decompose(topic string) []string { return f(topic) }

// #endregion decomposer
