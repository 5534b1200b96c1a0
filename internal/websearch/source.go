package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #region source

// Source adapts a search Provider into a research.EvidenceSource. All
// callers share one token bucket so concurrent sub-queries respect the
// provider's rate limit.
type Source struct {
	provider   Provider
	limiter    *rate.Limiter
	maxResults int
	logger     *slog.Logger
}

// NewSource builds the provider named in cfg.
func NewSource(cfg Config) (*Source, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	client := &http.Client{Timeout: cfg.Timeout}

	var p Provider
	switch strings.ToLower(cfg.Provider) {
	case "tavily":
		p = NewTavily(cfg.APIKey, cfg.Depth, cfg.Endpoint, client)
	case "brave":
		p = NewBrave(cfg.APIKey, cfg.Endpoint, client)
	case "duckduckgo", "ddg", "":
		p = NewDuckDuckGo(cfg.Endpoint, client)
	default:
		return nil, fmt.Errorf("unknown web search provider %q", cfg.Provider)
	}
	return NewSourceWithProvider(p, cfg), nil
}

// NewSourceWithProvider wraps an existing provider. A non-positive QPS
// disables rate limiting.
func NewSourceWithProvider(p Provider, cfg Config) *Source {
	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultConfig().MaxResults
	}
	return &Source{
		provider:   p,
		limiter:    rate.NewLimiter(limit, 1),
		maxResults: maxResults,
		logger:     logging.New("websearch"),
	}
}

// Retrieve runs one search and folds the results into a single Evidence.
func (s *Source) Retrieve(ctx context.Context, query string) (research.Evidence, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return research.Evidence{}, ctxErr
		}
		// Wait fails early when the deadline cannot fit the next token.
		return research.Evidence{}, research.Retryable(fmt.Errorf("%s: rate limit: %w", s.provider.Name(), err))
	}

	results, err := s.provider.Search(ctx, query)
	if err != nil {
		s.logger.Debug("search failed", "provider", s.provider.Name(), "query", query, "error", err)
		return research.Evidence{}, err
	}
	if len(results) == 0 {
		return research.Evidence{}, research.Permanentf("%s: no results for %q", s.provider.Name(), query)
	}
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}

	ev := research.Evidence{
		Query:  query,
		Text:   FormatAsEvidence(results),
		Origin: results[0].URL,
	}
	if ev.Origin == "" {
		ev.Origin = s.provider.Name() + ":" + query
	}
	for _, r := range results {
		ev.Sources = append(ev.Sources, research.Source{Title: r.Title, URL: r.URL})
	}
	s.logger.Debug("search ok", "provider", s.provider.Name(), "query", query, "results", len(results))
	return ev, nil
}

// #endregion source
