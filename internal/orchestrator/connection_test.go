package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vanta-voice/gateway/internal/cache"
	"github.com/vanta-voice/gateway/internal/history"
	"github.com/vanta-voice/gateway/internal/providers"
	"github.com/vanta-voice/gateway/internal/router"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []OutboundFrame
	binary [][]byte
	closed bool
	code   int
}

func (s *recordingSender) SendJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := v.(OutboundFrame); ok {
		s.frames = append(s.frames, f)
	}
	return nil
}

func (s *recordingSender) SendBinary(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	s.binary = append(s.binary, cp)
	return nil
}

func (s *recordingSender) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.code = code
	return nil
}

func (s *recordingSender) framesOfType(typ string) []OutboundFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboundFrame
	for _, f := range s.frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

type mockStreamingLLM struct{ response string }

func (m *mockStreamingLLM) Name() string { return "mock-llm" }

func (m *mockStreamingLLM) Complete(ctx context.Context, messages []providers.Message) (string, error) {
	return m.response, nil
}

func (m *mockStreamingLLM) Stream(ctx context.Context, messages []providers.Message, maxTokens int) (<-chan providers.Chunk, error) {
	ch := make(chan providers.Chunk, 2)
	ch <- providers.Chunk{Delta: m.response}
	ch <- providers.Chunk{Done: true}
	close(ch)
	return ch, nil
}

type mockTTS struct {
	mu      sync.Mutex
	aborted bool
}

func (m *mockTTS) Name() string { return "mock-tts" }

func (m *mockTTS) Synthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language) ([]byte, error) {
	return []byte(text), nil
}

func (m *mockTTS) StreamSynthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language, onChunk func([]byte) error) error {
	return onChunk([]byte(text))
}

func (m *mockTTS) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
	return nil
}

type mockStreamingSTT struct{}

func (m *mockStreamingSTT) Name() string { return "mock-stt" }

func (m *mockStreamingSTT) Transcribe(ctx context.Context, audio []byte, lang providers.Language) (string, error) {
	return "hello", nil
}

func (m *mockStreamingSTT) StreamTranscribe(ctx context.Context, lang providers.Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error) {
	ch := make(chan []byte, 8)
	go func() {
		for range ch {
		}
	}()
	return ch, nil
}

func newTestConnection(sender Sender, llmResponse string) *Connection {
	tts := &mockTTS{}
	r := router.New(&mockStreamingLLM{response: llmResponse}, nil, cache.NewMemStore(), history.NewMemStore(), nil)
	deps := Deps{
		Router:   r,
		STT:      &mockStreamingSTT{},
		TTS:      tts,
		Registry: NewRegistry(),
	}
	return NewConnection("conn-1", "device-1", "session-1", sender, deps)
}

func TestConnectionTextInputProducesAssistantTranscript(t *testing.T) {
	sender := &recordingSender{}
	c := newTestConnection(sender, "Hello there.")

	c.HandleJSON(InboundFrame{Type: InTextInput, Text: "hi"})

	final := sender.framesOfType(OutAssistantTranscript)
	if len(final) != 1 {
		t.Fatalf("expected one assistant_transcript frame, got %d", len(final))
	}
	if final[0].Text != "Hello there." {
		t.Errorf("got %q", final[0].Text)
	}
}

func TestConnectionPingPong(t *testing.T) {
	sender := &recordingSender{}
	c := newTestConnection(sender, "ignored")

	c.HandleJSON(InboundFrame{Type: InPing})

	if len(sender.framesOfType(OutPong)) != 1 {
		t.Error("expected a pong frame")
	}
}

func TestConnectionBargeInAbortsTTS(t *testing.T) {
	sender := &recordingSender{}
	c := newTestConnection(sender, "some response")
	tts := c.deps.TTS.(*mockTTS)

	c.HandleJSON(InboundFrame{Type: InBargeIn})

	tts.mu.Lock()
	aborted := tts.aborted
	tts.mu.Unlock()
	if !aborted {
		t.Error("expected TTS to be aborted on barge-in")
	}
	if len(sender.framesOfType(OutStatus)) != 1 {
		t.Error("expected a status frame")
	}
}

func TestConnectionUnknownFrameTypeReportsProtocolError(t *testing.T) {
	sender := &recordingSender{}
	c := newTestConnection(sender, "ignored")

	c.HandleJSON(InboundFrame{Type: "not-a-real-type"})

	errs := sender.framesOfType(OutError)
	if len(errs) != 1 || errs[0].Code != string(ErrorProtocol) {
		t.Errorf("got %+v", errs)
	}
}

func TestConnectionEvictClosesWithSupersededCode(t *testing.T) {
	sender := &recordingSender{}
	c := newTestConnection(sender, "ignored")

	c.Evict()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if !sender.closed || sender.code != CloseSupersededByNewer {
		t.Errorf("expected close code %d, got closed=%v code=%d", CloseSupersededByNewer, sender.closed, sender.code)
	}
}

func TestConnectionUpdateContextAndSetMode(t *testing.T) {
	sender := &recordingSender{}
	c := newTestConnection(sender, "ignored")

	c.HandleJSON(InboundFrame{Type: InUpdateContext, SystemPrompt: "be concise"})
	c.HandleJSON(InboundFrame{Type: InSetMode, Mode: ResponseModePlanning})

	c.mu.Lock()
	prompt := c.systemPrompt
	mode := c.mode
	c.mu.Unlock()

	if prompt != "be concise" {
		t.Errorf("got system prompt %q", prompt)
	}
	if mode != router.ModePlanning {
		t.Errorf("got mode %q", mode)
	}
}

func TestRegistryEvictsOnSecondConnectionForSameDevice(t *testing.T) {
	reg := NewRegistry()
	sender1 := &recordingSender{}
	sender2 := &recordingSender{}

	c1 := newTestConnection(sender1, "ignored")
	c1.deps.Registry = reg
	c2 := newTestConnection(sender2, "ignored")
	c2.deps.Registry = reg

	reg.Register("device-1", c1)
	reg.Register("device-1", c2)

	time.Sleep(interruptQuiescencePulse + 10*time.Millisecond)

	sender1.mu.Lock()
	defer sender1.mu.Unlock()
	if !sender1.closed || sender1.code != CloseSupersededByNewer {
		t.Errorf("expected first connection evicted, got closed=%v code=%d", sender1.closed, sender1.code)
	}
}
