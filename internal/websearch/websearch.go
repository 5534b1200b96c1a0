package websearch

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// #region types

// Result holds a single search result.
type Result struct {
	Title   string
	Snippet string
	URL     string
}

// Provider is one search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// Config holds web search parameters.
type Config struct {
	Provider   string // tavily | brave | duckduckgo
	APIKey     string
	Endpoint   string // overrides the provider's default URL
	Depth      string // tavily search depth
	MaxResults int
	Timeout    time.Duration
	QPS        float64 // requests per second across all callers
}

// #endregion types

// #region config

// DefaultConfig returns default web search configuration.
// Reads from env vars: WEB_SEARCH_PROVIDER, WEB_SEARCH_API_KEY,
// WEB_SEARCH_ENDPOINT, WEB_SEARCH_MAX_RESULTS, WEB_SEARCH_TIMEOUT,
// WEB_SEARCH_QPS.
func DefaultConfig() Config {
	cfg := Config{
		Provider:   "duckduckgo",
		Depth:      "basic",
		MaxResults: 5,
		Timeout:    10 * time.Second,
		QPS:        1,
	}
	if v := os.Getenv("WEB_SEARCH_PROVIDER"); v != "" {
		cfg.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("WEB_SEARCH_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("WEB_SEARCH_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("WEB_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxResults = n
		}
	}
	if v := os.Getenv("WEB_SEARCH_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Timeout = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("WEB_SEARCH_QPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.QPS = f
		}
	}
	return cfg
}

// #endregion config

// #region format

// FormatAsEvidence converts search results to the text body of one piece
// of evidence.
func FormatAsEvidence(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Web Search Results]\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "   Source: %s\n", r.URL)
		}
	}
	return b.String()
}

// #endregion format
