// Package tts holds the gateway's TTS providers. fallback.go carries the
// REST pair modeled on original_source's services/tts_service.py
// (CartesiaTTS primary, DeepgramSpeakTTS Aura fallback) and the Fallback
// wrapper that tries one after the other. This file keeps the teacher's
// pkg/providers/tts/lokutor.go websocket client, generalized to accept the
// Orchestrator's per-Turn voice/text and enforce the gateway's >=16KiB
// outbound chunking; cmd/gateway uses it as the primary in place of
// Cartesia when no Cartesia key is configured.
package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/vanta-voice/gateway/internal/providers"
)

// minChunkBytes is the gateway's outbound audio chunking floor; smaller
// provider-native chunks are coalesced before being handed to onChunk.
const minChunkBytes = 16 * 1024

// LokutorTTS streams speech from Lokutor's websocket API.
type LokutorTTS struct {
	apiKey string
	host   string
	mu     sync.Mutex
	conn   *websocket.Conn
}

func NewLokutorTTS(apiKey string) *LokutorTTS {
	return &LokutorTTS{apiKey: apiKey, host: "api.lokutor.com"}
}

func (t *LokutorTTS) Name() string { return "lokutor" }

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: "wss", Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lokutor: %w", err)
	}

	t.conn = conn
	return conn, nil
}

func (t *LokutorTTS) Synthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language) ([]byte, error) {
	var audio []byte
	err := t.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// StreamSynthesize sends one synthesis request and streams binary chunks to
// onChunk, coalescing provider-native fragments up to minChunkBytes before
// delivery (spec.md §4.5's >=16KiB outbound chunking requirement).
func (t *LokutorTTS) StreamSynthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language, onChunk func([]byte) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":    text,
		"voice":   string(voice),
		"lang":    string(lang),
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	var pending []byte
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := onChunk(pending)
		pending = nil
		return err
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("failed to read from lokutor: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			pending = append(pending, payload...)
			if len(pending) >= minChunkBytes {
				if err := flush(); err != nil {
					return err
				}
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return flush()
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("lokutor error: %s", msg)
			}
		}
	}
}

// Abort closes the shared connection so the next request redials. It takes
// the same mutex StreamSynthesize holds for its whole read loop, so it
// returns only after any in-flight synthesis has ended; it does not cut
// that synthesis short itself.
func (t *LokutorTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "interrupted")
		t.conn = nil
		return err
	}
	return nil
}
