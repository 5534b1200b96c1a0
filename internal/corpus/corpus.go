package corpus

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/planner"
	"github.com/danielpatrickdp/deepresearch/internal/research"
	"github.com/danielpatrickdp/deepresearch/internal/store"
)

// #region config

// Config controls corpus ranking.
type Config struct {
	TopK       int     // documents folded into one Evidence
	MinOverlap float64 // fraction of query keywords a document must share
	ExcerptLen int     // runes kept per document
}

// DefaultConfig returns the default ranking policy.
func DefaultConfig() Config {
	return Config{
		TopK:       3,
		MinOverlap: 0.25,
		ExcerptLen: 1200,
	}
}

// #endregion config

// #region source

// DocumentLister is the slice of the store the corpus reads from.
type DocumentLister interface {
	Documents(limit int) ([]store.Document, error)
}

// Source answers queries from locally stored documents.
type Source struct {
	docs   DocumentLister
	config Config
}

// NewSource creates a corpus EvidenceSource over docs.
func NewSource(docs DocumentLister, config Config) *Source {
	def := DefaultConfig()
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.MinOverlap <= 0 {
		config.MinOverlap = def.MinOverlap
	}
	if config.ExcerptLen <= 0 {
		config.ExcerptLen = def.ExcerptLen
	}
	return &Source{docs: docs, config: config}
}

type scored struct {
	doc   store.Document
	score float64
}

// Retrieve ranks documents by keyword overlap with query.
func (s *Source) Retrieve(ctx context.Context, query string) (research.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return research.Evidence{}, err
	}
	qk := planner.Keywords(query)
	if len(qk) == 0 {
		return research.Evidence{}, research.Permanentf("corpus: query %q has no keywords", query)
	}

	docs, err := s.docs.Documents(0)
	if err != nil {
		return research.Evidence{}, research.Retryable(fmt.Errorf("corpus: %w", err))
	}

	var ranked []scored
	for _, d := range docs {
		shared := planner.SharedKeywords(qk, d.Keywords)
		score := float64(shared) / float64(len(qk))
		if shared == 0 || score < s.config.MinOverlap {
			continue
		}
		ranked = append(ranked, scored{doc: d, score: score})
	}
	if len(ranked) == 0 {
		return research.Evidence{}, research.Permanentf("corpus: no documents match %q", query)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > s.config.TopK {
		ranked = ranked[:s.config.TopK]
	}

	logging.New("corpus").Debug("ranked", "query", query, "matches", len(ranked), "top_score", ranked[0].score)
	return s.fold(query, ranked), nil
}

// fold merges the ranked documents into one Evidence.
func (s *Source) fold(query string, ranked []scored) research.Evidence {
	var b strings.Builder
	ev := research.Evidence{
		Query:  query,
		Origin: origin(ranked[0].doc),
		Score:  ranked[0].score,
	}
	for i, r := range ranked {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", r.doc.Title, excerpt(r.doc.Body, s.config.ExcerptLen))
		ev.Sources = append(ev.Sources, research.Source{
			Title: r.doc.Title,
			URL:   origin(r.doc),
			Score: r.score,
		})
	}
	ev.Text = b.String()
	return ev
}

// #endregion source

// #region helpers

func origin(d store.Document) string {
	if d.URL != "" {
		return d.URL
	}
	return "corpus:" + d.DocID
}

func excerpt(body string, max int) string {
	r := []rune(strings.TrimSpace(body))
	if len(r) <= max {
		return string(r)
	}
	cut := string(r[:max])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// #endregion helpers
