package planner

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #region planner
// Planner turns a topic into an ordered, bounded set of sub-queries.
type Planner struct {
	config     Config
	decomposer Decomposer
}

// New creates a Planner. A nil decomposer selects FacetDecomposer and
// non-positive limits fall back to DefaultConfig.
func New(config Config, decomposer Decomposer) *Planner {
	def := DefaultConfig()
	if config.MaxSubQueries <= 0 {
		config.MaxSubQueries = def.MaxSubQueries
	}
	if config.MaxTopicLength <= 0 {
		config.MaxTopicLength = def.MaxTopicLength
	}
	if config.MaxSubQueryLength <= 0 {
		config.MaxSubQueryLength = def.MaxSubQueryLength
	}
	if decomposer == nil {
		decomposer = FacetDecomposer{}
	}
	return &Planner{config: config, decomposer: decomposer}
}

// #endregion planner

// #region plan
// Plan validates the topic and returns 1..MaxSubQueries sub-queries that are
// non-empty and pairwise distinct ignoring case. IDs are plan indexes.
// Invalid topics produce an error wrapping research.ErrInvalidTopic.
func (p *Planner) Plan(topic string) ([]research.SubQuery, error) {
	t := strings.TrimSpace(topic)
	if t == "" {
		return nil, fmt.Errorf("%w: topic is empty", research.ErrInvalidTopic)
	}
	if n := utf8.RuneCountInString(t); n > p.config.MaxTopicLength {
		return nil, fmt.Errorf("%w: topic is %d characters, limit is %d",
			research.ErrInvalidTopic, n, p.config.MaxTopicLength)
	}

	seen := make(map[string]bool)
	var plan []research.SubQuery
	for _, c := range p.decomposer.Decompose(t) {
		c = truncateWords(strings.Join(strings.Fields(c), " "), p.config.MaxSubQueryLength)
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		plan = append(plan, research.SubQuery{ID: len(plan), Text: c})
		if len(plan) == p.config.MaxSubQueries {
			break
		}
	}

	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: no sub-queries could be derived", research.ErrInvalidTopic)
	}
	return plan, nil
}

// #endregion plan

// #region helpers
// truncateWords cuts s to at most max runes, backing up to the last space
// when one exists so words are not split.
func truncateWords(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// #endregion helpers
