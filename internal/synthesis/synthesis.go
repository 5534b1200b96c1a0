// Package synthesis turns collected evidence into a research report.
package synthesis

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #region config

// Config controls report assembly.
type Config struct {
	SummarySentences int // lead sentences lifted into the summary
}

// DefaultConfig returns the default report settings.
func DefaultConfig() Config {
	return Config{SummarySentences: 3}
}

// #endregion config

// #region synthesizer

// Synthesizer builds reports deterministically from evidence. It performs
// no I/O and is safe for concurrent use.
type Synthesizer struct {
	config Config
}

// New creates a Synthesizer.
func New(config Config) *Synthesizer {
	if config.SummarySentences < 0 {
		config.SummarySentences = 0
	}
	return &Synthesizer{config: config}
}

// Synthesize builds a report for topic. Sections follow plan order
// (Evidence.SubQueryID), never arrival order. Empty or malformed input
// yields an error wrapping research.ErrSynthesis.
func (s *Synthesizer) Synthesize(topic string, evidence []research.Evidence) (research.Report, error) {
	if len(evidence) == 0 {
		return research.Report{}, fmt.Errorf("%w: no evidence to synthesize", research.ErrSynthesis)
	}

	ordered := make([]research.Evidence, len(evidence))
	copy(ordered, evidence)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SubQueryID < ordered[j].SubQueryID
	})

	seen := make(map[int]bool, len(ordered))
	for _, ev := range ordered {
		if seen[ev.SubQueryID] {
			return research.Report{}, fmt.Errorf("%w: duplicate evidence for sub-query %d", research.ErrSynthesis, ev.SubQueryID)
		}
		seen[ev.SubQueryID] = true
		if strings.TrimSpace(ev.Text) == "" {
			return research.Report{}, fmt.Errorf("%w: empty evidence for sub-query %d", research.ErrSynthesis, ev.SubQueryID)
		}
	}

	refs := newReferenceIndex()
	sections := make([]research.Section, 0, len(ordered))
	for _, ev := range ordered {
		heading := strings.TrimSpace(ev.Query)
		if heading == "" {
			heading = fmt.Sprintf("Facet %d", ev.SubQueryID+1)
		}
		sections = append(sections, research.Section{
			SubQueryID: ev.SubQueryID,
			Heading:    heading,
			Body:       strings.TrimSpace(ev.Text),
			Citations:  refs.cite(ev),
			Score:      ev.Score,
		})
	}

	topic = strings.TrimSpace(topic)
	return research.Report{
		Title:      "Research report: " + topic,
		Summary:    s.summarize(topic, sections, len(refs.list)),
		Sections:   sections,
		References: refs.list,
	}, nil
}

// #endregion synthesizer

// #region summary

func (s *Synthesizer) summarize(topic string, sections []research.Section, sources int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This report covers %d %s of %q drawing on %d %s.",
		len(sections), plural(len(sections), "facet", "facets"),
		topic, sources, plural(sources, "source", "sources"))

	n := s.config.SummarySentences
	for _, sec := range sections {
		if n == 0 {
			break
		}
		if lead := firstSentence(sec.Body); lead != "" {
			b.WriteString(" ")
			b.WriteString(lead)
			n--
		}
	}
	return b.String()
}

// firstSentence returns text up to and including the first sentence
// terminator followed by whitespace, or the whole text when there is none.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			return string(runes[:i+1])
		}
	}
	return text
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// #endregion summary

// #region references

type referenceIndex struct {
	byOrigin map[string]int
	list     []research.Reference
}

func newReferenceIndex() *referenceIndex {
	return &referenceIndex{byOrigin: make(map[string]int)}
}

// cite numbers each distinct origin once, in first-seen order, and returns
// the reference numbers for ev.
func (x *referenceIndex) cite(ev research.Evidence) []int {
	type origin struct{ key, title string }
	var origins []origin
	for _, src := range ev.Sources {
		if src.URL != "" {
			origins = append(origins, origin{src.URL, src.Title})
		}
	}
	if len(origins) == 0 && ev.Origin != "" {
		origins = append(origins, origin{key: ev.Origin})
	}

	var nums []int
	used := make(map[int]bool)
	for _, o := range origins {
		n, ok := x.byOrigin[o.key]
		if !ok {
			n = len(x.list) + 1
			x.byOrigin[o.key] = n
			x.list = append(x.list, research.Reference{Number: n, Origin: o.key, Title: o.title})
		}
		if !used[n] {
			used[n] = true
			nums = append(nums, n)
		}
	}
	return nums
}

// #endregion references
