package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #region defaults
const (
	tavilyEndpoint = "https://api.tavily.com/search"
	braveEndpoint  = "https://api.search.brave.com/res/v1/web/search"
	ddgEndpoint    = "https://lite.duckduckgo.com/lite/"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)
// #endregion defaults

// #region tavily

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey   string
	Depth    string
	endpoint string
	client   *http.Client
}

// NewTavily constructs a Tavily provider. An empty endpoint selects the
// public API.
func NewTavily(apiKey, depth, endpoint string, client *http.Client) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	return &Tavily{APIKey: apiKey, Depth: depth, endpoint: endpoint, client: client}
}

func (t *Tavily) Name() string { return "tavily" }

// Search posts a query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, research.Permanentf("tavily: API key is missing")
	}
	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.APIKey,
		"search_depth": t.Depth,
	})
	if err != nil {
		return nil, research.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, research.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := do(ctx, t.client, req, "tavily")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, research.Permanent(fmt.Errorf("tavily: decode: %w", err))
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}

// #endregion tavily

// #region brave

// Brave uses the Brave Search API with an X-Subscription-Token key.
type Brave struct {
	APIKey   string
	endpoint string
	client   *http.Client
}

// NewBrave constructs a Brave provider.
func NewBrave(apiKey, endpoint string, client *http.Client) *Brave {
	if endpoint == "" {
		endpoint = braveEndpoint
	}
	return &Brave{APIKey: apiKey, endpoint: endpoint, client: client}
}

func (b *Brave) Name() string { return "brave" }

// Search executes a Brave query.
func (b *Brave) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, research.Permanentf("brave: API key is missing")
	}
	endpoint := b.endpoint + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, research.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := do(ctx, b.client, req, "brave")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, research.Permanent(fmt.Errorf("brave: decode: %w", err))
	}

	results := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: stripTags(r.Description)})
	}
	return results, nil
}

// #endregion brave

// #region duckduckgo

// DuckDuckGo scrapes DuckDuckGo's HTML lite interface. No key is needed.
type DuckDuckGo struct {
	endpoint string
	client   *http.Client
}

// NewDuckDuckGo constructs a DuckDuckGo provider.
func NewDuckDuckGo(endpoint string, client *http.Client) *DuckDuckGo {
	if endpoint == "" {
		endpoint = ddgEndpoint
	}
	return &DuckDuckGo{endpoint: endpoint, client: client}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search posts the query form and parses the result table.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, research.Permanent(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := do(ctx, d.client, req, "duckduckgo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, research.Retryable(fmt.Errorf("duckduckgo: parse: %w", err))
	}
	return parseLite(doc), nil
}

// parseLite pairs each result-link anchor with the next result-snippet cell.
func parseLite(doc *html.Node) []Result {
	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				href := attr(n, "href")
				title := textContent(n)
				if href != "" && title != "" {
					results = append(results, Result{Title: title, URL: href})
				}
			case n.Data == "td" && hasClass(n, "result-snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = textContent(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// #endregion duckduckgo

// #region http

// do sends req and classifies the outcome. 429, 5xx and transport errors are
// retryable; any other non-200 status is permanent.
func do(ctx context.Context, client *http.Client, req *http.Request, provider string) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return nil, research.Retryable(fmt.Errorf("%s: timeout: %w", provider, err))
		}
		return nil, research.Retryable(fmt.Errorf("%s: %w", provider, err))
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	resp.Body.Close()

	err = fmt.Errorf("%s http %d", provider, resp.StatusCode)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, research.Retryable(err)
	}
	return nil, research.Permanent(err)
}

// #endregion http

// #region html-helpers

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripTags removes inline markup such as <strong> from API snippets.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div})
	if err != nil {
		return s
	}
	var parts []string
	for _, n := range nodes {
		if t := textContent(n); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// #endregion html-helpers
