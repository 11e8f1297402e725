// Package search implements the web-search lookup the router runs, and
// waits on for a bounded time, before LLM generation for
// "planning"/"detailed" response modes. Grounded on
// original_source's services/search_service.py (a thin wrapper over the
// Tavily REST API). No search-client SDK or library appears anywhere in the
// retrieved example pack — see DESIGN.md for why this stays on net/http.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	tavilyURL        = "https://api.tavily.com/search"
	searchDepth      = "basic"
	maxResults       = 3
	noResultsMessage = "No relevant search results found."
)

// Client performs web searches and formats them for inclusion in an LLM prompt.
type Client struct {
	apiKey string
	url    string
	http   *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey, url: tavilyURL, http: http.DefaultClient}
}

// NewClientWithURL builds a Client against a custom endpoint, used in tests
// to point at an httptest.Server instead of the live Tavily API.
func NewClientWithURL(apiKey, url string) *Client {
	return &Client{apiKey: apiKey, url: url, http: http.DefaultClient}
}

type tavilyResult struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// Search runs a query and returns a formatted block suitable for insertion
// into the system prompt, matching search_service.py's format_search_results.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	payload := map[string]interface{}{
		"api_key":      c.apiKey,
		"query":        query,
		"search_depth": searchDepth,
		"max_results":  maxResults,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("tavily search error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return formatResults(result.Results), nil
}

func formatResults(results []tavilyResult) string {
	if len(results) == 0 {
		return noResultsMessage
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "Source: %s\nContent: %s\n\n", r.URL, r.Content)
	}
	return b.String()
}
