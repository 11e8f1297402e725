// Package llm adapts the teacher's hand-rolled net/http LLM clients
// (pkg/providers/llm/{openai,anthropic,google}.go) to the gateway's
// streaming Router, and reconstructs the Groq client the teacher's own
// groq_test.go and cmd/agent/main.go reference but whose implementation
// file was not present in the retrieved pack.
//
// Groq is the LLM primary per original_source's core/config.py and
// services/llm_service.py, which select "llama-3.1-8b-instant" for the
// "faster" mode and "llama-3.3-70b-versatile" for "planning"/"detailed",
// both against Groq's OpenAI-compatible chat/completions endpoint with
// "stream": true. GroqLLM is built the same way the teacher's
// pkg/providers/stt/groq.go reaches Groq (bare net/http against
// api.groq.com, bearer auth) generalized from STT's multipart upload to
// chat completions, and generalized from the teacher's single-shot
// Complete to a streaming SSE reader the way llm_service.py consumes
// Groq's stream.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vanta-voice/gateway/internal/providers"
)

// GroqLLM hits Groq's OpenAI-compatible chat/completions endpoint.
type GroqLLM struct {
	apiKey string
	url    string
	model  string
}

// NewGroqLLM builds a Groq client. model defaults to
// "llama-3.3-70b-versatile" when empty; the Router overrides it per mode.
func NewGroqLLM(apiKey string, model string) *GroqLLM {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqLLM{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
	}
}

func (l *GroqLLM) Name() string { return "groq-llm" }

func (l *GroqLLM) Complete(ctx context.Context, messages []providers.Message) (string, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
		"stream":   false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("groq llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from groq")
	}
	return result.Choices[0].Message.Content, nil
}

// Stream requests a streamed completion, parsing Groq's
// "data: {...}"-per-line SSE format with bufio.Scanner the way the rest of
// the OpenAI-compatible provider family does, and closes the returned
// channel on "[DONE]" or stream end.
func (l *GroqLLM) Stream(ctx context.Context, messages []providers.Message, maxTokens int) (<-chan providers.Chunk, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
		"stream":   true,
	}
	if maxTokens > 0 {
		payload["max_tokens"] = maxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("groq llm stream error (status %d): %v", resp.StatusCode, errResp)
	}

	out := make(chan providers.Chunk, 16)

	go func() {
		defer resp.Body.Close()
		defer close(out)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				out <- providers.Chunk{Done: true}
				return
			}

			var event struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
					FinishReason *string `json:"finish_reason"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}
			for _, c := range event.Choices {
				if c.Delta.Content != "" {
					select {
					case out <- providers.Chunk{Delta: c.Delta.Content}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}
