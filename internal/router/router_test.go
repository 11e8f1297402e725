package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vanta-voice/gateway/internal/cache"
	"github.com/vanta-voice/gateway/internal/history"
	"github.com/vanta-voice/gateway/internal/providers"
	"github.com/vanta-voice/gateway/internal/search"
)

type mockStreamingLLM struct {
	chunks []providers.Chunk
	err    error
}

func (m *mockStreamingLLM) Name() string { return "mock-streaming-llm" }

func (m *mockStreamingLLM) Complete(ctx context.Context, messages []providers.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	var full string
	for _, c := range m.chunks {
		full += c.Delta
	}
	return full, nil
}

func (m *mockStreamingLLM) Stream(ctx context.Context, messages []providers.Message, maxTokens int) (<-chan providers.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan providers.Chunk, len(m.chunks))
	for _, c := range m.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type mockLLM struct {
	response string
	err      error
}

func (m *mockLLM) Name() string { return "mock-llm" }

func (m *mockLLM) Complete(ctx context.Context, messages []providers.Message) (string, error) {
	return m.response, m.err
}

func TestAnswerStreamsFromPrimary(t *testing.T) {
	primary := &mockStreamingLLM{chunks: []providers.Chunk{{Delta: "Hel"}, {Delta: "lo"}, {Done: true}}}
	r := New(primary, nil, cache.NewMemStore(), history.NewMemStore(), nil)

	var got string
	full, fromCache, err := r.Answer(context.Background(), "sess-1", "hi", "be helpful", ModeFaster, nil, func(delta string) error {
		got += delta
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromCache {
		t.Error("expected not from cache")
	}
	if got != "Hello" || full != "Hello" {
		t.Errorf("got %q, full %q", got, full)
	}
}

func TestAnswerFallsBackOnPrimaryError(t *testing.T) {
	primary := &mockStreamingLLM{err: errors.New("primary down")}
	fallback := &mockLLM{response: "fallback answer"}
	r := New(primary, fallback, cache.NewMemStore(), history.NewMemStore(), nil)

	full, _, err := r.Answer(context.Background(), "sess-1", "hi", "be helpful", ModeFaster, nil, func(delta string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "fallback answer" {
		t.Errorf("got %q", full)
	}
}

func TestAnswerUsesCacheWhenNoHistory(t *testing.T) {
	primary := &mockStreamingLLM{chunks: []providers.Chunk{{Delta: "fresh"}, {Done: true}}}
	cacheStore := cache.NewMemStore()
	cacheStore.Set(context.Background(), "hi", "be helpful", "cached answer")
	r := New(primary, nil, cacheStore, history.NewMemStore(), nil)

	full, fromCache, err := r.Answer(context.Background(), "sess-1", "hi", "be helpful", ModeFaster, nil, func(delta string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fromCache {
		t.Error("expected cache hit")
	}
	if full != "cached answer" {
		t.Errorf("got %q", full)
	}
}

func TestAnswerSkipsCacheWhenHistoryExists(t *testing.T) {
	primary := &mockStreamingLLM{chunks: []providers.Chunk{{Delta: "fresh"}, {Done: true}}}
	cacheStore := cache.NewMemStore()
	cacheStore.Set(context.Background(), "hi", "be helpful", "cached answer")
	historyStore := history.NewMemStore()
	historyStore.Append(context.Background(), "sess-1", providers.Message{Role: "user", Content: "earlier turn"})
	r := New(primary, nil, cacheStore, historyStore, nil)

	full, fromCache, err := r.Answer(context.Background(), "sess-1", "hi", "be helpful", ModeFaster, nil, func(delta string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromCache {
		t.Error("expected cache to be skipped when history exists")
	}
	if full != "fresh" {
		t.Errorf("got %q", full)
	}
}

func TestNeedsSearchDetectsTimeSensitiveQueries(t *testing.T) {
	cases := map[string]bool{
		"what's the weather today":               true,
		"who won the game last night":            true,
		"what is the latest news":                true,
		"explain recursion to me":                false,
		"what's the current stock price of acme": true,
		"what's bitcoin trading at":               true,
		"tell me about recent developments":       true,
		"who is the president":                    true,
		"what's for dinner":                       false,
	}
	for q, want := range cases {
		if got := NeedsSearch(q); got != want {
			t.Errorf("NeedsSearch(%q) = %v, want %v", q, got, want)
		}
	}
}

func newSearchServer(t *testing.T) *search.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"url":"https://example.com","content":"it is sunny"}]}`))
	}))
	t.Cleanup(srv.Close)
	return search.NewClientWithURL("key", srv.URL)
}

func TestAnswerEmitsStatusBeforeSearchInPlanningMode(t *testing.T) {
	primary := &mockStreamingLLM{chunks: []providers.Chunk{{Delta: "it is sunny"}, {Done: true}}}
	r := New(primary, nil, cache.NewMemStore(), history.NewMemStore(), newSearchServer(t))

	var deltas []string
	_, _, err := r.Answer(context.Background(), "sess-1", "what's the weather today", "be helpful", ModePlanning, nil, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deltas) == 0 || deltas[0] != statusSearching {
		t.Fatalf("expected first delta to be %q, got %v", statusSearching, deltas)
	}
	for _, d := range deltas[1:] {
		if strings.HasPrefix(d, "[STATUS: ") {
			t.Errorf("unexpected extra status frame: %q", d)
		}
	}
}

func TestAnswerNeverSearchesInFasterMode(t *testing.T) {
	primary := &mockStreamingLLM{chunks: []providers.Chunk{{Delta: "answer"}, {Done: true}}}
	r := New(primary, nil, cache.NewMemStore(), history.NewMemStore(), newSearchServer(t))

	var deltas []string
	_, _, err := r.Answer(context.Background(), "sess-1", "what's the weather today", "be helpful", ModeFaster, nil, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range deltas {
		if d == statusSearching {
			t.Error("faster mode must never launch a search")
		}
	}
}
