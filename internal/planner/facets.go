package planner

import (
	"regexp"
	"strings"
)

// #region facets
// facets are appended to the topic's keyword core, broadest first, so a
// small MaxSubQueries keeps the most general angles.
var facets = []string{
	"overview",
	"history and background",
	"recent developments",
	"key challenges and limitations",
	"real-world applications",
	"criticism and debate",
	"future outlook",
}

var compoundSeparators = regexp.MustCompile(`(?i)\s*[;,]\s*|\s+(?:and|vs\.?|versus)\s+`)

// FacetDecomposer is the default heuristic Decomposer: the topic itself,
// then each part of a compound topic, then facet queries over the topic's
// keyword core.
type FacetDecomposer struct{}

// Decompose implements Decomposer.
func (FacetDecomposer) Decompose(topic string) []string {
	out := []string{topic}
	out = append(out, splitCompound(topic)...)

	core := strings.Join(Keywords(topic), " ")
	if core == "" {
		core = topic
	}
	for _, f := range facets {
		out = append(out, core+" "+f)
	}
	return out
}

// splitCompound returns the parts of "A and B", "A; B" or "A, B" when every part
// carries at least one keyword, otherwise nil.
func splitCompound(topic string) []string {
	parts := compoundSeparators.Split(topic, -1)
	if len(parts) < 2 {
		return nil
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
		if len(Keywords(parts[i])) == 0 {
			return nil
		}
	}
	return parts
}

// #endregion facets
