package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearchFormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tavilyResponse{Results: []tavilyResult{
			{URL: "https://example.com/a", Content: "first result"},
			{URL: "https://example.com/b", Content: "second result"},
		}})
	}))
	defer srv.Close()

	c := NewClient("key")
	c.url = srv.URL

	got, err := c.Search(context.Background(), "weather today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "Source: https://example.com/a") || !strings.Contains(got, "first result") {
		t.Errorf("got %q, missing expected result formatting", got)
	}
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tavilyResponse{Results: nil})
	}))
	defer srv.Close()

	c := NewClient("key")
	c.url = srv.URL

	got, err := c.Search(context.Background(), "nonsense query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != noResultsMessage {
		t.Errorf("got %q, want %q", got, noResultsMessage)
	}
}
