package stt

import (
	"bytes"
	"context"
	"sync"

	"github.com/vanta-voice/gateway/internal/providers"
)

// chunksBeforeFallbackFlush matches stt_service.py's send_audio: ~2 seconds
// of audio (60 chunks) before the SpeechRecognition-equivalent fallback
// batch-submits what it has accumulated.
const chunksBeforeFallbackFlush = 60

// Fallback wraps a StreamingSTTProvider primary with a batch STTProvider
// secondary, reproducing services/stt_service.py's behavior: audio is
// always sent to the streaming primary while it is healthy; once the
// primary's connect retries are exhausted, incoming audio is buffered and
// periodically batch-submitted to the secondary instead, emitting its
// result as a single final transcript.
type Fallback struct {
	primary   StreamingSTTProviderFactory
	secondary providers.STTProvider

	mu            sync.Mutex
	buffer        bytes.Buffer
	chunkCount    int
	primaryFailed bool
}

// StreamingSTTProviderFactory opens a fresh streaming session (Deepgram
// requires a new websocket per Turn).
type StreamingSTTProviderFactory interface {
	StreamTranscribe(ctx context.Context, lang providers.Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error)
	Name() string
}

// NewFallback builds a Fallback adapter.
func NewFallback(primary StreamingSTTProviderFactory, secondary providers.STTProvider) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Name() string { return "stt-fallback(" + f.primary.Name() + "," + f.secondary.Name() + ")" }

// StreamTranscribe attempts the primary; on failure to even establish a
// session it falls straight to buffered batch mode for the lifetime of
// this Turn, matching the original's deepgram_failed latch.
func (f *Fallback) StreamTranscribe(ctx context.Context, lang providers.Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error) {
	primaryCh, err := f.primary.StreamTranscribe(ctx, lang, onTranscript)
	if err == nil {
		return primaryCh, nil
	}

	f.mu.Lock()
	f.primaryFailed = true
	f.mu.Unlock()

	fallbackCh := make(chan []byte, 64)
	go f.runFallback(ctx, lang, fallbackCh, onTranscript)
	return fallbackCh, nil
}

func (f *Fallback) runFallback(ctx context.Context, lang providers.Language, ch <-chan []byte, onTranscript func(transcript string, isFinal bool) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-ch:
			if !ok {
				f.flush(ctx, lang, onTranscript)
				return
			}
			f.mu.Lock()
			f.buffer.Write(chunk)
			f.chunkCount++
			shouldFlush := f.chunkCount >= chunksBeforeFallbackFlush
			f.mu.Unlock()

			if shouldFlush {
				f.flush(ctx, lang, onTranscript)
			}
		}
	}
}

func (f *Fallback) flush(ctx context.Context, lang providers.Language, onTranscript func(transcript string, isFinal bool) error) {
	f.mu.Lock()
	if f.buffer.Len() == 0 {
		f.mu.Unlock()
		return
	}
	data := make([]byte, f.buffer.Len())
	copy(data, f.buffer.Bytes())
	f.buffer.Reset()
	f.chunkCount = 0
	f.mu.Unlock()

	text, err := f.secondary.Transcribe(ctx, data, lang)
	if err != nil || text == "" {
		return
	}
	onTranscript(text, true)
}
