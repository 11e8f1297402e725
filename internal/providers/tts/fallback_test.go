package tts

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/vanta-voice/gateway/internal/providers"
)

type stubTTS struct {
	name string
	err  error
	data []byte
}

func (s *stubTTS) Name() string { return s.name }

func (s *stubTTS) Synthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

func (s *stubTTS) StreamSynthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language, onChunk func([]byte) error) error {
	if s.err != nil {
		return s.err
	}
	return onChunk(s.data)
}

func (s *stubTTS) Abort() error { return nil }

func TestFallbackUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubTTS{name: "p", data: []byte("primary audio")}
	secondary := &stubTTS{name: "s", data: []byte("secondary audio")}
	fb := NewFallback(primary, secondary)

	got, err := fb.Synthesize(context.Background(), "hi", "", providers.LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, primary.data) {
		t.Errorf("got %q, want primary audio", got)
	}
}

func TestFallbackFallsBackOnPrimaryError(t *testing.T) {
	primary := &stubTTS{name: "p", err: errors.New("primary down")}
	secondary := &stubTTS{name: "s", data: []byte("secondary audio")}
	fb := NewFallback(primary, secondary)

	got, err := fb.Synthesize(context.Background(), "hi", "", providers.LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, secondary.data) {
		t.Errorf("got %q, want secondary audio", got)
	}
}

func TestStreamChunkedCoalescesUnderMinChunkBytes(t *testing.T) {
	var chunks [][]byte
	r := bytes.NewReader(make([]byte, 20000))

	err := streamChunked(r, func(c []byte) error {
		cp := make([]byte, len(c))
		copy(cp, c)
		chunks = append(chunks, cp)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var total int
	for i, c := range chunks {
		total += len(c)
		if i < len(chunks)-1 && len(c) < minChunkBytes {
			t.Errorf("non-final chunk %d too small: %d bytes", i, len(c))
		}
	}
	if total != 20000 {
		t.Errorf("total bytes = %d, want 20000", total)
	}
}

func TestFallbackStreamSynthesizeFallsBack(t *testing.T) {
	primary := &stubTTS{name: "p", err: errors.New("down")}
	secondary := &stubTTS{name: "s", data: []byte("fallback chunk")}
	fb := NewFallback(primary, secondary)

	var got []byte
	err := fb.StreamSynthesize(context.Background(), "hi", "", providers.LanguageEn, func(c []byte) error {
		got = append(got, c...)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, secondary.data) {
		t.Errorf("got %q, want %q", got, secondary.data)
	}
}
