// Package router decides how a user turn gets answered: which model and
// token budget to use, whether a web search is worth racing against
// generation, and whether the content cache can skip the LLM call
// entirely. Grounded on original_source's services/llm_service.py.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vanta-voice/gateway/internal/cache"
	"github.com/vanta-voice/gateway/internal/history"
	"github.com/vanta-voice/gateway/internal/metrics"
	"github.com/vanta-voice/gateway/internal/providers"
	"github.com/vanta-voice/gateway/internal/search"
)

// Mode is the client-selected response mode (spec.md §6's set_response_mode).
type Mode string

const (
	ModeFaster   Mode = "faster"
	ModePlanning Mode = "planning"
	ModeDetailed Mode = "detailed"
)

// modeProfile pairs a mode with the model and token budget llm_service.py
// assigns it.
type modeProfile struct {
	model     string
	maxTokens int
}

var profiles = map[Mode]modeProfile{
	ModeFaster:   {model: "llama-3.1-8b-instant", maxTokens: 150},
	ModePlanning: {model: "llama-3.3-70b-versatile", maxTokens: 250},
	ModeDetailed: {model: "llama-3.3-70b-versatile", maxTokens: 250},
}

// searchWaitTimeout bounds how long generation waits for an in-flight
// search before proceeding without it (llm_service.py's sequential,
// not-quite-a-race wait).
const searchWaitTimeout = 800 * time.Millisecond

// searchTriggerWords is the single-word trigger set llm_service.py's
// _needs_web_search intersects the tokenized, lowercased query against.
var searchTriggerWords = map[string]bool{
	"weather": true, "temperature": true, "forecast": true, "rain": true, "snow": true,
	"sunny": true, "cloudy": true, "today": true, "yesterday": true, "tonight": true,
	"tomorrow": true, "latest": true, "recent": true, "current": true, "now": true,
	"news": true, "happened": true, "breaking": true, "update": true, "announcement": true,
	"score": true, "game": true, "match": true, "won": true, "lost": true,
	"championship": true, "tournament": true, "price": true, "stock": true, "market": true,
	"trading": true, "crypto": true, "bitcoin": true, "ethereum": true,
}

// searchTriggerPhrases is the substring phrase set from the same gate.
var searchTriggerPhrases = []string{"who is", "what is happening", "tell me about recent", "this week"}

// searchTriggerRegexes catches patterns the word/phrase sets miss.
var searchTriggerRegexes = []*regexp.Regexp{
	regexp.MustCompile(`what.*happening`),
	regexp.MustCompile(`who.*won`),
	regexp.MustCompile(`what.*score`),
	regexp.MustCompile(`how.*weather`),
	regexp.MustCompile(`what.*price`),
}

// tokenTrimSet is the punctuation trimmed off a whitespace-split token
// before set membership is checked, so "weather?" still matches "weather".
const tokenTrimSet = ".,!?;:\"'"

// NeedsSearch reports whether a query looks time-sensitive enough to
// warrant a web search, mirroring llm_service.py's _needs_web_search:
// single-word trigger intersection, substring phrase match, then regex.
func NeedsSearch(query string) bool {
	lower := strings.ToLower(query)

	for _, word := range strings.Fields(lower) {
		if searchTriggerWords[strings.Trim(word, tokenTrimSet)] {
			return true
		}
	}

	for _, phrase := range searchTriggerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	for _, re := range searchTriggerRegexes {
		if re.MatchString(lower) {
			return true
		}
	}

	return false
}

// statusSearching is yielded as a status chunk the moment a search is
// launched, so the client sees exactly one status frame before any
// transcript_chunk (spec.md §4.1/§8 scenario S4).
const statusSearching = "[STATUS: Searching...]"

// searchResultMaxChars bounds injected search context (spec.md §4.3).
const searchResultMaxChars = 2000

// Router ties the LLM, cache, history, and search dependencies together to
// answer one turn.
type Router struct {
	primary  providers.StreamingLLMProvider
	fallback providers.LLMProvider
	cache    cache.Store
	history  history.Store
	search   *search.Client
	historyN int
}

func New(primary providers.StreamingLLMProvider, fallback providers.LLMProvider, cacheStore cache.Store, historyStore history.Store, searchClient *search.Client) *Router {
	return &Router{primary: primary, fallback: fallback, cache: cacheStore, history: historyStore, search: searchClient, historyN: 10}
}

// Answer resolves one turn, emitting streamed deltas via onChunk and
// returning the fully assembled text plus whether it was served from cache.
// tracker may be nil (e.g. in tests); when present it records search_latency
// and the model name alongside the stage timings the caller owns.
func (r *Router) Answer(ctx context.Context, sessionID, query, systemPrompt string, mode Mode, tracker *metrics.Tracker, onChunk func(delta string) error) (full string, fromCache bool, err error) {
	profile, ok := profiles[mode]
	if !ok {
		profile = profiles[ModeFaster]
	}
	if tracker != nil {
		tracker.SetModel(profile.model)
	}

	priorTurns, err := r.history.Recent(ctx, sessionID, r.historyN)
	if err != nil {
		return "", false, fmt.Errorf("router: history lookup: %w", err)
	}

	if len(priorTurns) == 0 && r.cache != nil {
		if cached, hit, cerr := r.cache.Get(ctx, query, systemPrompt); cerr == nil && hit {
			if err := onChunk(cached); err != nil {
				return "", false, err
			}
			return cached, true, nil
		}
	}

	searchResultCh, searchLaunched := r.launchSearch(ctx, query, mode, tracker)
	if searchLaunched {
		if err := onChunk(statusSearching); err != nil {
			return "", false, err
		}
	}

	messages := r.buildMessages(systemPrompt, priorTurns, query, searchResultCh, mode, searchLaunched, tracker)

	full, err = r.generate(ctx, messages, profile, onChunk)
	if err != nil {
		return "", false, err
	}

	if len(priorTurns) == 0 && r.cache != nil {
		r.cache.Set(ctx, query, systemPrompt, full)
	}

	return full, false, nil
}

// launchSearch kicks off a search concurrently when the query looks
// time-sensitive; it returns a channel carrying the formatted result (or
// nothing, if no search was needed) and whether a search was actually
// launched. "faster" mode never searches, matching llm_service.py forcing
// needs_search=False for that mode regardless of the pre-classifier.
func (r *Router) launchSearch(ctx context.Context, query string, mode Mode, tracker *metrics.Tracker) (<-chan string, bool) {
	resultCh := make(chan string, 1)
	if mode == ModeFaster || r.search == nil || !NeedsSearch(query) {
		close(resultCh)
		return resultCh, false
	}

	if tracker != nil {
		tracker.StartTiming("search_latency")
	}

	go func() {
		defer close(resultCh)
		result, err := r.search.Search(ctx, query)
		if err != nil {
			return
		}
		select {
		case resultCh <- result:
		case <-ctx.Done():
		}
	}()

	return resultCh, true
}

// buildMessages waits up to searchWaitTimeout for a search result (longer
// for "detailed" mode, which awaits the full search rather than racing it)
// before assembling the prompt, matching llm_service.py's sequential wait.
// search_latency is recorded regardless of whether the wait produced a
// result, as long as a search was actually launched.
func (r *Router) buildMessages(systemPrompt string, priorTurns []providers.Message, query string, searchResultCh <-chan string, mode Mode, searchLaunched bool, tracker *metrics.Tracker) []providers.Message {
	var searchContext string

	if searchLaunched {
		if mode == ModeDetailed {
			if result, ok := <-searchResultCh; ok {
				searchContext = result
			}
		} else {
			select {
			case result, ok := <-searchResultCh:
				if ok {
					searchContext = result
				}
			case <-time.After(searchWaitTimeout):
			}
		}
		if tracker != nil {
			tracker.StopTiming("search_latency")
		}
	}

	if len(searchContext) > searchResultMaxChars {
		searchContext = searchContext[:searchResultMaxChars]
	}

	prompt := systemPrompt
	if searchContext != "" {
		prompt = strings.TrimSpace(systemPrompt) + "\n\nRelevant search results:\n" + searchContext
	}

	messages := make([]providers.Message, 0, len(priorTurns)+2)
	messages = append(messages, providers.Message{Role: "system", Content: prompt})
	messages = append(messages, priorTurns...)
	messages = append(messages, providers.Message{Role: "user", Content: query})
	return messages
}

// generate streams from the primary provider, falling back to a single
// non-streamed completion from the fallback provider (Gemini) if the
// primary errors, matching llm_service.py's except-clause fallback.
func (r *Router) generate(ctx context.Context, messages []providers.Message, profile modeProfile, onChunk func(delta string) error) (string, error) {
	ch, err := r.primary.Stream(ctx, messages, profile.maxTokens)
	if err == nil {
		var full strings.Builder
		for chunk := range ch {
			if chunk.Done {
				return full.String(), nil
			}
			full.WriteString(chunk.Delta)
			if err := onChunk(chunk.Delta); err != nil {
				return full.String(), err
			}
		}
		return full.String(), nil
	}

	if r.fallback == nil {
		return "", fmt.Errorf("router: primary llm failed and no fallback configured: %w", err)
	}

	text, ferr := r.fallback.Complete(ctx, messages)
	if ferr != nil {
		return "", fmt.Errorf("router: primary and fallback llm both failed: primary=%w fallback=%v", err, ferr)
	}
	if cerr := onChunk(text); cerr != nil {
		return "", cerr
	}
	return text, nil
}
