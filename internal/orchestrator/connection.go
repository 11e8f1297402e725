package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/vanta-voice/gateway/internal/audioproc"
	"github.com/vanta-voice/gateway/internal/history"
	"github.com/vanta-voice/gateway/internal/logging"
	"github.com/vanta-voice/gateway/internal/metrics"
	"github.com/vanta-voice/gateway/internal/providers"
	"github.com/vanta-voice/gateway/internal/router"
	"github.com/vanta-voice/gateway/internal/segmenter"
	"github.com/vanta-voice/gateway/internal/sessions"
	"github.com/vanta-voice/gateway/internal/vad"
	"github.com/vanta-voice/gateway/internal/validate"
)

// pcmSampleRate is the fixed input sample rate the client streams binary
// audio frames at (spec.md §4); audioproc.Process needs it to size its
// high-pass filter's FFT bin width correctly.
const pcmSampleRate = 16000

// Sender abstracts the websocket connection a Connection writes frames to,
// so the state machine can be tested without a real network socket.
type Sender interface {
	SendJSON(v interface{}) error
	SendBinary(b []byte) error
	Close(code int, reason string) error
}

// Deps bundles a Connection's provider and storage dependencies.
type Deps struct {
	Router   *router.Router
	STT      providers.StreamingSTTProvider
	TTS      providers.TTSProvider
	History  history.Store
	Sessions sessions.Store
	Metrics  *metrics.Tracker
	Logger   logging.Logger
	Registry *Registry
}

// Connection is the per-/ws/chat-socket Turn state machine: it owns the
// gen-id counter and cancel funcs the way the teacher's ManagedStream does,
// generalized so a barge-in can be signaled explicitly by the client
// (a "barge-in" JSON frame or new speech while the bot is talking) instead
// of being detected acoustically, since there is no shared mic/speaker loop
// to listen for echo on over a network connection.
type Connection struct {
	id        string
	deviceID  string
	sessionID string
	sender    Sender
	deps      Deps

	mu           sync.Mutex
	mode         router.Mode
	systemPrompt string
	genID        int
	sttCancel    context.CancelFunc
	sttChan      chan<- []byte
	turnCancel   context.CancelFunc
	isSpeaking   bool
	evicted      bool
	closeOnce    sync.Once

	gate vad.Gate
}

func NewConnection(id, deviceID, sessionID string, sender Sender, deps Deps) *Connection {
	return &Connection{
		id:        id,
		deviceID:  deviceID,
		sessionID: sessionID,
		sender:    sender,
		deps:      deps,
		mode:      router.ModeFaster,
		gate:      vad.NewFramedGate(1, pcmSampleRate, 700*time.Millisecond),
	}
}

// Start emits the four-frame system_log startup handshake every new
// connection receives. The streaming STT session itself is started lazily,
// on the first binary audio frame (see HandleBinary).
func (c *Connection) Start() {
	c.send(OutboundFrame{Type: OutSystemLog, Message: "Connection secure"})
	c.send(OutboundFrame{Type: OutSystemLog, Message: "Buffer synchronized"})
	c.send(OutboundFrame{Type: OutSystemLog, Message: "Neural weights loaded"})
	c.send(OutboundFrame{Type: OutSystemLog, Message: "Engine ready"})
}

// Evict is called by the Registry when a newer connection from the same
// device supersedes this one; it closes with the spec's reserved 4000 code.
func (c *Connection) Evict() {
	c.mu.Lock()
	c.evicted = true
	c.mu.Unlock()
	c.interrupt(interruptQuiescencePulse)
	c.sender.Close(CloseSupersededByNewer, "superseded by newer connection")
}

// Close tears down any in-flight turn and unregisters the device slot.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.interrupt(interruptQuiescencePulse)
		if c.deps.Registry != nil {
			c.deps.Registry.Unregister(c.deviceID, c)
		}
	})
}

func (c *Connection) send(f OutboundFrame) {
	c.mu.Lock()
	evicted := c.evicted
	c.mu.Unlock()
	if evicted {
		return
	}
	c.sender.SendJSON(f)
}

// HandleBinary ingests one chunk of raw PCM audio, lazily starting a
// streaming STT session on the first chunk of a turn.
func (c *Connection) HandleBinary(pcm []byte) {
	c.mu.Lock()
	ch := c.sttChan
	c.mu.Unlock()

	if ch == nil {
		c.startSTT()
		c.mu.Lock()
		ch = c.sttChan
		c.mu.Unlock()
	}

	cleaned := audioproc.Process(pcm, pcmSampleRate)

	if event, err := c.gate.Process(cleaned); err == nil && event != nil {
		switch event.Type {
		case vad.SpeechStart:
			if c.deps.Metrics != nil {
				c.deps.Metrics.StartTiming("stt_latency")
			}
			c.send(OutboundFrame{Type: OutStatus, Message: "speech_start"})
		case vad.SpeechEnd:
			c.send(OutboundFrame{Type: OutStatus, Message: "speech_end"})
		}
	}

	if ch != nil {
		select {
		case ch <- cleaned:
		default:
		}
	}
}

func (c *Connection) startSTT() {
	c.mu.Lock()
	if c.sttChan != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.sttCancel = cancel
	generation := c.genID
	c.mu.Unlock()

	if c.deps.Metrics != nil {
		c.deps.Metrics.Reset()
	}

	ch, err := c.deps.STT.StreamTranscribe(ctx, providers.LanguageEn, func(transcript string, isFinal bool) error {
		c.mu.Lock()
		stale := c.genID != generation
		speaking := c.isSpeaking
		c.mu.Unlock()
		if stale {
			return nil
		}

		if speaking && strings.TrimSpace(transcript) != "" {
			c.interrupt(interruptQuiescencePulse)
		}

		if isFinal {
			c.mu.Lock()
			c.sttChan = nil
			c.mu.Unlock()
			if strings.TrimSpace(transcript) != "" {
				c.runTurn(transcript)
			}
		} else {
			c.send(OutboundFrame{Type: OutTranscriptInterim, Text: transcript})
		}
		return nil
	})
	if err != nil {
		cancel()
		c.send(OutboundFrame{Type: OutError, Code: string(ErrorProviderFatal), Message: err.Error()})
		return
	}

	c.mu.Lock()
	c.sttChan = ch
	c.mu.Unlock()
}

// HandleJSON dispatches one decoded inbound control frame.
func (c *Connection) HandleJSON(f InboundFrame) {
	switch f.Type {
	case InPing:
		c.send(OutboundFrame{Type: OutPong})
	case InBargeIn:
		c.interrupt(bargeInQuiescencePulse)
		c.send(OutboundFrame{Type: OutStatus, Message: "interrupted"})
	case InSpeechEnd:
		c.finalizeSTT()
	case InUpdateContext:
		c.mu.Lock()
		c.systemPrompt = validate.SanitizeSystemPrompt(f.SystemPrompt)
		c.mu.Unlock()
	case InSetMode:
		c.mu.Lock()
		c.mode = router.Mode(f.Mode)
		c.mu.Unlock()
	case InTextInput:
		if c.deps.Metrics != nil {
			c.deps.Metrics.Reset()
		}
		c.runTurn(f.Text)
	default:
		c.send(OutboundFrame{Type: OutError, Code: string(ErrorProtocol), Message: "unknown frame type: " + f.Type})
	}
}

// finalizeSTT closes the active STT channel so the provider flushes a final
// transcript for whatever audio it has already buffered.
func (c *Connection) finalizeSTT() {
	c.mu.Lock()
	ch := c.sttChan
	c.sttChan = nil
	c.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// interrupt cancels any in-flight STT/turn pipeline and bumps the
// generation counter so stale callbacks are ignored, mirroring
// ManagedStream.internalInterrupt. pulse is the quiescence wait applied
// afterward: the turn-start gap uses interruptQuiescencePulse, an explicit
// client "barge-in" frame uses the shorter bargeInQuiescencePulse.
func (c *Connection) interrupt(pulse time.Duration) {
	c.mu.Lock()
	sttCancel := c.sttCancel
	turnCancel := c.turnCancel
	c.sttCancel = nil
	c.turnCancel = nil
	c.sttChan = nil
	c.isSpeaking = false
	c.genID++
	c.mu.Unlock()

	if sttCancel != nil {
		sttCancel()
	}
	if turnCancel != nil {
		turnCancel()
	}
	c.deps.TTS.Abort()

	time.Sleep(pulse)
}

// runTurn drives one full user turn: persists the transcript, answers via
// the router, segments the streamed text into sentences, and synthesizes
// each sentence as it completes.
func (c *Connection) runTurn(transcript string) {
	transcript = validate.SanitizeTranscript(transcript)
	if transcript == "" {
		return
	}

	c.mu.Lock()
	if c.turnCancel != nil {
		c.turnCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.turnCancel = cancel
	c.isSpeaking = true
	generation := c.genID
	mode := c.mode
	systemPrompt := c.systemPrompt
	c.mu.Unlock()
	defer cancel()

	if c.deps.Metrics != nil {
		c.deps.Metrics.StopTiming("stt_latency")
		c.deps.Metrics.StartTiming("llm_generation")
		c.deps.Metrics.StartTiming("tts_latency")
		c.deps.Metrics.StartTiming("total_turnaround")
	}

	c.send(OutboundFrame{Type: OutTranscript, Text: transcript})

	if c.deps.History != nil && c.sessionID != "" {
		c.deps.History.Append(ctx, c.sessionID, providers.Message{Role: "user", Content: transcript})
	}
	if c.deps.Sessions != nil && c.sessionID != "" {
		c.deps.Sessions.AppendMessage(ctx, c.sessionID, "user", transcript)
	}

	c.send(OutboundFrame{Type: OutAssistantStart})

	buf := segmenter.New()
	var synthErr error
	processed := make(map[string]bool)
	ttsLatencyStopped := false

	emitSentence := func(sentence string, isFlush bool) {
		c.send(OutboundFrame{Type: OutTranscriptChunk, Text: sentence})
		if synthErr != nil {
			return
		}
		cleaned := cleanForSpeech(sentence, isFlush)
		if cleaned == "" || processed[cleaned] {
			return
		}
		processed[cleaned] = true
		err := c.deps.TTS.StreamSynthesize(ctx, cleaned, "", providers.LanguageEn, func(audio []byte) error {
			if c.isStale(generation) {
				return context.Canceled
			}
			if c.deps.Metrics != nil && !ttsLatencyStopped {
				c.deps.Metrics.StopTiming("tts_latency")
				ttsLatencyStopped = true
			}
			return c.sender.SendBinary(audio)
		})
		if err != nil && ctx.Err() == nil {
			synthErr = err
		}
	}

	full, fromCache, err := c.deps.Router.Answer(ctx, c.sessionID, transcript, systemPrompt, mode, c.deps.Metrics, func(delta string) error {
		if c.isStale(generation) {
			return context.Canceled
		}
		if msg, ok := parseStatusChunk(delta); ok {
			c.send(OutboundFrame{Type: OutStatus, Message: msg})
			return nil
		}
		for _, sentence := range buf.AddChunk(delta) {
			emitSentence(sentence, false)
		}
		return nil
	})

	if c.isStale(generation) {
		return
	}

	if err != nil {
		if c.deps.Metrics != nil {
			c.deps.Metrics.StopTiming("llm_generation")
			c.deps.Metrics.StopTiming("total_turnaround")
		}
		kind := ErrorProviderTransient
		if ctx.Err() != nil {
			kind = ErrorCancelled
		}
		c.send(OutboundFrame{Type: OutError, Code: string(kind), Message: err.Error()})
		return
	}

	if remainder := buf.Flush(); remainder != "" {
		emitSentence(remainder, true)
	}

	if synthErr != nil && ctx.Err() == nil {
		c.send(OutboundFrame{Type: OutError, Code: string(ErrorProviderTransient), Message: synthErr.Error()})
	}

	c.send(OutboundFrame{Type: OutAssistantTranscript, Text: full, FromCache: fromCache})

	if c.deps.History != nil && c.sessionID != "" {
		c.deps.History.Append(ctx, c.sessionID, providers.Message{Role: "assistant", Content: full})
	}
	if c.deps.Sessions != nil && c.sessionID != "" {
		c.deps.Sessions.AppendMessage(ctx, c.sessionID, "assistant", full)
		if msgs, lerr := c.deps.Sessions.ListMessages(ctx, c.sessionID); lerr == nil && len(msgs) == 2 {
			c.deps.Sessions.UpdateTitle(ctx, c.sessionID, sessions.TitleFromContent(transcript))
		}
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.StopTiming("llm_generation")
		c.deps.Metrics.StopTiming("total_turnaround")
		c.deps.Metrics.AddTokens(len(strings.Fields(full)))
		snap := c.deps.Metrics.Snapshot()
		data := map[string]interface{}{
			"stt_latency":      snap.Durations["stt_latency"],
			"llm_generation":   snap.Durations["llm_generation"],
			"tts_latency":      snap.Durations["tts_latency"],
			"search_latency":   snap.Durations["search_latency"],
			"total_turnaround": snap.Durations["total_turnaround"],
			"tps":              snap.TPS,
			"model":            snap.Model,
		}
		c.send(OutboundFrame{Type: OutMetrics, Data: data})
	}

	c.mu.Lock()
	c.isSpeaking = false
	c.turnCancel = nil
	c.mu.Unlock()
}

// parseStatusChunk detects a "[STATUS: ...]" delta emitted by the router
// when it launches a search, which is a client-facing status frame rather
// than text to segment and speak.
func parseStatusChunk(delta string) (string, bool) {
	if strings.HasPrefix(delta, "[STATUS: ") && strings.HasSuffix(delta, "]") {
		return strings.TrimSuffix(strings.TrimPrefix(delta, "[STATUS: "), "]"), true
	}
	return "", false
}

// cleanForSpeech prepares a segmented sentence for TTS synthesis: ellipses
// become commas, periods not followed by a digit (so "3.5" survives) are
// dropped, and trailing punctuation TTS providers tend to mis-render is
// stripped (spec.md §4.1/§8 scenario "Well... fine." → "Well, fine").
// isFlush additionally lowercases the result, matching the
// residual-sentence handling at stream end.
func cleanForSpeech(sentence string, isFlush bool) string {
	s := strings.ReplaceAll(sentence, "...", ",")

	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r == '.' {
			if i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
				b.WriteRune(r)
			}
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	s = strings.TrimRight(strings.TrimSpace(s), "!?,;:")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if isFlush {
		s = strings.ToLower(s)
	}
	return s
}

func (c *Connection) isStale(generation int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.genID != generation
}
