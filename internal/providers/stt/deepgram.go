// Package stt adapts the teacher's four batch STT providers
// (pkg/providers/stt/{assemblyai,deepgram,groq,openai}.go) and adds a
// genuine streaming Deepgram client, generalizing the teacher's batch-only
// DeepgramSTT the way original_source's services/stt_service.py actually
// uses Deepgram in production: a long-lived websocket connection
// (dg_client.listen.live.v("1")) with model="nova-2-general",
// language="en-US", smart_format=true, encoding="linear16",
// sample_rate=16000, interim_results=true, endpointing=500,
// vad_events=false, and a 3-attempt/1s-2s-4s-backoff connect retry before
// falling back to a secondary offline recognizer.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vanta-voice/gateway/internal/providers"
)

// DeepgramStreamingSTT is the production primary recognizer.
type DeepgramStreamingSTT struct {
	apiKey string
	host   string
}

// NewDeepgramStreamingSTT builds a streaming Deepgram client.
func NewDeepgramStreamingSTT(apiKey string) *DeepgramStreamingSTT {
	return &DeepgramStreamingSTT{apiKey: apiKey, host: "api.deepgram.com"}
}

func (s *DeepgramStreamingSTT) Name() string { return "deepgram-streaming-stt" }

// Transcribe satisfies STTProvider by running one short streaming session
// and returning the first final transcript it observes.
func (s *DeepgramStreamingSTT) Transcribe(ctx context.Context, audioPCM []byte, lang providers.Language) (string, error) {
	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)

	audioCh, err := s.StreamTranscribe(ctx, lang, func(transcript string, isFinal bool) error {
		if isFinal {
			select {
			case resultCh <- transcript:
			default:
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	audioCh <- audioPCM
	close(audioCh)

	select {
	case r := <-resultCh:
		return r, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type deepgramAlternative struct {
	Transcript string `json:"transcript"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives"`
}

type deepgramResult struct {
	IsFinal bool            `json:"is_final"`
	Channel deepgramChannel `json:"channel"`
}

// StreamTranscribe opens a Deepgram streaming connection with up to 3
// connect attempts (1s, 2s, 4s backoff, matching stt_service.py's start())
// and returns a channel the caller pushes raw PCM chunks into.
func (s *DeepgramStreamingSTT) StreamTranscribe(ctx context.Context, lang providers.Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error) {
	conn, err := s.connectWithRetry(ctx, lang)
	if err != nil {
		return nil, err
	}

	audioCh := make(chan []byte, 64)
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { conn.Close() }) }

	go func() {
		defer closeConn()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-audioCh:
				if !ok {
					conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer closeConn()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var result deepgramResult
			if err := json.Unmarshal(msg, &result); err != nil {
				continue
			}
			if len(result.Channel.Alternatives) == 0 {
				continue
			}
			transcript := result.Channel.Alternatives[0].Transcript
			if transcript == "" {
				continue
			}
			if err := onTranscript(transcript, result.IsFinal); err != nil {
				return
			}
		}
	}()

	return audioCh, nil
}

func (s *DeepgramStreamingSTT) connectWithRetry(ctx context.Context, lang providers.Language) (*websocket.Conn, error) {
	language := "en-US"
	if lang != "" {
		language = string(lang)
	}

	q := url.Values{}
	q.Set("model", "nova-2-general")
	q.Set("language", language)
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", "16000")
	q.Set("interim_results", "true")
	q.Set("endpointing", "500")
	q.Set("vad_events", "false")

	u := url.URL{Scheme: "wss", Host: s.host, Path: "/v1/listen", RawQuery: q.Encode()}

	header := make(map[string][]string)
	header["Authorization"] = []string{"Token " + s.apiKey}

	retryDelay := time.Second
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
	}
	return nil, fmt.Errorf("deepgram: all connection attempts failed: %w", lastErr)
}
