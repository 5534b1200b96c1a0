package research

import "context"

// #region topic

// Topic is the caller-supplied subject to research.
type Topic string

// #endregion topic

// #region subquery

// SubQuery is one facet of a topic investigated independently.
// ID is the plan index and is used to correlate outcomes.
type SubQuery struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// #endregion subquery

// #region evidence

// Source is a single origin that contributed to a piece of evidence.
type Source struct {
	Title string  `json:"title,omitempty"`
	URL   string  `json:"url,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// Evidence is retrieved content for one sub-query.
type Evidence struct {
	SubQueryID int      `json:"subquery_id"`
	Query      string   `json:"query"`
	Text       string   `json:"text"`
	Origin     string   `json:"origin"`
	Score      float64  `json:"score,omitempty"`
	Sources    []Source `json:"sources,omitempty"`
}

// #endregion evidence

// #region evidence-source

// EvidenceSource performs one retrieval call for one query.
// The call's timeout is carried by ctx. Failures should be wrapped with
// Retryable or Permanent so the retriever can decide whether to try again;
// unclassified errors are treated as permanent.
type EvidenceSource interface {
	Retrieve(ctx context.Context, query string) (Evidence, error)
}

// SourceFunc adapts a function to EvidenceSource.
type SourceFunc func(ctx context.Context, query string) (Evidence, error)

// Retrieve calls f.
func (f SourceFunc) Retrieve(ctx context.Context, query string) (Evidence, error) {
	return f(ctx, query)
}

// #endregion evidence-source

// #region outcome

// Failure describes why a sub-query produced no evidence.
type Failure struct {
	Kind      ErrorKind `json:"kind"`
	Reason    string    `json:"reason"`
	Retryable bool      `json:"retryable"`
}

// RetrievalOutcome is the result of retrieving one sub-query: exactly one of
// Evidence or Failure is set. Outcomes are never mutated after creation.
type RetrievalOutcome struct {
	SubQuery SubQuery  `json:"subquery"`
	Evidence *Evidence `json:"evidence,omitempty"`
	Failure  *Failure  `json:"failure,omitempty"`
	Attempts int       `json:"attempts"`
}

// Succeeded builds a success outcome.
func Succeeded(sq SubQuery, ev Evidence, attempts int) RetrievalOutcome {
	ev.SubQueryID = sq.ID
	if ev.Query == "" {
		ev.Query = sq.Text
	}
	return RetrievalOutcome{SubQuery: sq, Evidence: &ev, Attempts: attempts}
}

// Failed builds a failure outcome.
func Failed(sq SubQuery, kind ErrorKind, reason string, retryable bool, attempts int) RetrievalOutcome {
	return RetrievalOutcome{
		SubQuery: sq,
		Failure:  &Failure{Kind: kind, Reason: reason, Retryable: retryable},
		Attempts: attempts,
	}
}

// OK reports whether the outcome carries evidence.
func (o RetrievalOutcome) OK() bool {
	return o.Evidence != nil
}

// #endregion outcome

// #region report

// Reference is a numbered citation in a report.
type Reference struct {
	Number int    `json:"number"`
	Origin string `json:"origin"`
	Title  string `json:"title,omitempty"`
}

// Section is one part of a report, built from one sub-query's evidence.
type Section struct {
	SubQueryID int     `json:"subquery_id"`
	Heading    string  `json:"heading"`
	Body       string  `json:"body"`
	Citations  []int   `json:"citations,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Report is the synthesized output of a successful run.
type Report struct {
	Title      string      `json:"title"`
	Summary    string      `json:"summary"`
	Sections   []Section   `json:"sections"`
	References []Reference `json:"references,omitempty"`
}

// #endregion report
