// Package websearch provides a web search tool backed by the Brave Search
// API.
package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald"
)

const defaultBaseURL = "https://api.search.brave.com/res/v1/web/search"

const maxResults = 20

// Client is a thin wrapper around the Brave Web Search API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// New creates a Brave search client.
func New(apiKey string, options ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, goerr.New("brave search API key is not configured")
	}

	client := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// Result is one web search hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type braveResponse struct {
	Web struct {
		Results []Result `json:"results"`
	} `json:"web"`
}

// Search queries the Brave Web Search API.
func (c *Client) Search(ctx context.Context, query string, count int, country, searchLang string) ([]Result, error) {
	if count <= 0 || count > maxResults {
		count = maxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	if country != "" {
		params.Set("country", country)
	}
	if searchLang != "" {
		params.Set("search_lang", searchLang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build search request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "search request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("search request rejected", goerr.V("status", resp.StatusCode))
	}

	var body braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, goerr.Wrap(err, "failed to decode search response")
	}

	results := body.Web.Results
	if len(results) > count {
		results = results[:count]
	}
	return results, nil
}

// Tool exposes the client as a server-side tool.
func (c *Client) Tool() herald.Tool {
	spec := &herald.ToolSpec{
		Name:        "web_search.brave",
		Description: "Search the web and return the top results with title, URL and description.",
		Parameters: map[string]*herald.Parameter{
			"query":       {Type: herald.TypeString, Description: "Search query"},
			"count":       {Type: herald.TypeInteger, Description: "Number of results, max 20"},
			"country":     {Type: herald.TypeString, Description: "Country code, e.g. US"},
			"search_lang": {Type: herald.TypeString, Description: "Language code, e.g. en"},
		},
		Required: []string{"query"},
		Target:   herald.TargetServer,
		Risk:     herald.RiskLow,
	}

	return herald.NewServerTool(spec, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		query, _ := args["query"].(string)

		count := 5
		switch v := args["count"].(type) {
		case int64:
			count = int(v)
		case float64:
			count = int(v)
		}

		country, _ := args["country"].(string)
		searchLang, _ := args["search_lang"].(string)

		results, err := c.Search(ctx, query, count, country, searchLang)
		if err != nil {
			return nil, err
		}

		items := make([]any, 0, len(results))
		for _, r := range results {
			items = append(items, map[string]any{
				"title":       r.Title,
				"url":         r.URL,
				"description": r.Description,
			})
		}

		return map[string]any{
			"results": items,
			"count":   len(items),
		}, nil
	})
}
