package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tidwall/gjson"

	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/tool"
)

// Web search defaults.
const (
	DefaultSearchResults = 5
	maxSearchResults     = 10
	defaultSearchTimeout = 30 * time.Second
	defaultSearchTTL     = 15 * time.Minute
	searchCacheSize      = 256
	maxSearchBytes       = 2 << 20
	maxSnippetLen        = 300
)

// WebSearchConfig configures the web_search tool.
type WebSearchConfig struct {
	// Endpoint is the base URL of a SearXNG instance with the JSON format
	// enabled.
	Endpoint   string        `yaml:"endpoint"`
	MaxResults int           `yaml:"max_results"`
	Language   string        `yaml:"language"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

type searchResult struct {
	Title   string
	URL     string
	Snippet string
}

// WebSearch queries a SearXNG-compatible JSON endpoint.
type WebSearch struct {
	cfg    WebSearchConfig
	client *http.Client
	filter *security.URLFilter
	cache  *expirable.LRU[string, string]
	logger *slog.Logger
}

// NewWebSearch creates the web_search tool. filter and logger may be nil.
func NewWebSearch(cfg WebSearchConfig, filter *security.URLFilter, logger *slog.Logger) *WebSearch {
	if cfg.MaxResults <= 0 || cfg.MaxResults > maxSearchResults {
		cfg.MaxResults = DefaultSearchResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSearchTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultSearchTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebSearch{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		filter: filter,
		cache:  expirable.NewLRU[string, string](searchCacheSize, nil, cfg.CacheTTL),
		logger: logger,
	}
}

// Spec implements tool.Tool.
func (w *WebSearch) Spec() tool.Spec {
	return tool.Spec{
		Name:        NameWebSearch,
		Description: "Searches the web for current information. Returns titles, URLs and snippets of the top results.",
		Inputs: []tool.Input{
			{Name: "query", Type: tool.InputString, Description: "The search query."},
			{
				Name:        "max_results",
				Type:        tool.InputInteger,
				Description: fmt.Sprintf("Number of results to return (1-%d).", maxSearchResults),
				Nullable:    true,
			},
		},
		OutputType: tool.OutputText,
	}
}

// Invoke implements tool.Tool.
func (w *WebSearch) Invoke(ctx context.Context, args tool.Args) (tool.Result, error) {
	query, err := queryArg(args)
	if err != nil {
		return tool.Result{}, err
	}
	count := w.cfg.MaxResults
	if n, ok := args["max_results"].(int64); ok && n >= 1 && n <= maxSearchResults {
		count = int(n)
	}

	key := fmt.Sprintf("%d\x00%s", count, query)
	if cached, ok := w.cache.Get(key); ok {
		w.logger.Debug("web search cache hit", "query", query)
		return tool.TextResult(cached), nil
	}

	results, err := w.search(ctx, query)
	if err != nil {
		return tool.Result{}, err
	}
	if len(results) > count {
		results = results[:count]
	}
	out := formatSearchResults(query, results)
	w.cache.Add(key, out)
	return tool.TextResult(out), nil
}

func (w *WebSearch) search(ctx context.Context, query string) ([]searchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	if w.cfg.Language != "" {
		params.Set("language", w.cfg.Language)
	}
	reqURL := strings.TrimRight(w.cfg.Endpoint, "/") + "/search?" + params.Encode()

	if w.filter != nil {
		if err := w.filter.Check(reqURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrBackend, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, backendMessage(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON response", ErrBackend)
	}

	var results []searchResult
	gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
		results = append(results, searchResult{
			Title:   strings.TrimSpace(r.Get("title").String()),
			URL:     r.Get("url").String(),
			Snippet: truncate(strings.TrimSpace(r.Get("content").String()), maxSnippetLen),
		})
		return true
	})
	return results, nil
}

func formatSearchResults(query string, results []searchResult) string {
	if len(results) == 0 {
		return "No results found for: " + query
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}
