package orchestrator

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/planner"
	"github.com/danielpatrickdp/deepresearch/internal/research"
	"github.com/danielpatrickdp/deepresearch/internal/retrieval"
	"github.com/danielpatrickdp/deepresearch/internal/synthesis"
)

// #endregion

// #region config

// Config is the full policy for a research run.
type Config struct {
	Planner   planner.Config
	Retrieval retrieval.Config
	Synthesis synthesis.Config

	OverallTimeout        time.Duration // run-scoped deadline
	MinSuccessfulEvidence int           // 0 selects a majority of dispatched sub-queries
	MaxConcurrency        int           // evidence calls in flight at once
}

// DefaultConfig returns the default run policy.
func DefaultConfig() Config {
	return Config{
		Planner:        planner.DefaultConfig(),
		Retrieval:      retrieval.DefaultConfig(),
		Synthesis:      synthesis.DefaultConfig(),
		OverallTimeout: 60 * time.Second,
		MaxConcurrency: 4,
	}
}

// #endregion

// #region state

// State is a ResearchRun lifecycle stage.
type State string

const (
	StatePlanning     State = "planning"
	StateDispatching  State = "dispatching"
	StateCollecting   State = "collecting"
	StateSynthesizing State = "synthesizing"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// transitions lists the legal moves out of each non-terminal state.
var transitions = map[State][]State{
	StatePlanning:     {StateDispatching, StateFailed},
	StateDispatching:  {StateCollecting, StateFailed},
	StateCollecting:   {StateSynthesizing, StateFailed},
	StateSynthesizing: {StateSucceeded, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// #endregion

// #region interfaces

// Planner expands a topic into sub-queries.
type Planner interface {
	Plan(topic string) ([]research.SubQuery, error)
}

// Synthesizer builds a report from successful evidence.
type Synthesizer interface {
	Synthesize(topic string, evidence []research.Evidence) (research.Report, error)
}

// RunLogger persists how each run resolved.
type RunLogger interface {
	LogRun(entry logging.RunEntry) error
}

// #endregion
