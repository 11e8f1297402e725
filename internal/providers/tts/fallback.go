package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vanta-voice/gateway/internal/providers"
)

const defaultCartesiaVoice providers.Voice = "a0e99841-438c-4a64-b679-ae501e7d6091"

// CartesiaTTS is the confirmed production REST primary (sonic-english),
// grounded on services/tts_service.py's synthesize_cartesia.
type CartesiaTTS struct {
	apiKey string
	url    string
	model  string
	voice  providers.Voice
}

func NewCartesiaTTS(apiKey string) *CartesiaTTS {
	return &CartesiaTTS{
		apiKey: apiKey,
		url:    "https://api.cartesia.ai/tts/bytes",
		model:  "sonic-english",
		voice:  defaultCartesiaVoice,
	}
}

func (c *CartesiaTTS) Name() string { return "cartesia" }

func (c *CartesiaTTS) Synthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language) ([]byte, error) {
	var audio []byte
	err := c.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	return audio, err
}

func (c *CartesiaTTS) StreamSynthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language, onChunk func([]byte) error) error {
	v := c.voice
	if voice != "" {
		v = voice
	}
	language := "en"
	if lang != "" {
		language = string(lang)
	}

	payload := map[string]interface{}{
		"model_id":   c.model,
		"transcript": text,
		"language":   language,
		"output_format": map[string]interface{}{
			"container":   "raw",
			"encoding":    "pcm_s16le",
			"sample_rate": 16000,
		},
		"voice": map[string]interface{}{
			"mode": "id",
			"id":   string(v),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", "2024-06-10")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cartesia error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return streamChunked(resp.Body, onChunk)
}

func (c *CartesiaTTS) Abort() error { return nil }

// DeepgramSpeakTTS is the fallback used when Cartesia synthesis fails,
// grounded on services/tts_service.py's synthesize_deepgram path.
type DeepgramSpeakTTS struct {
	apiKey string
	url    string
	voice  string
}

func NewDeepgramSpeakTTS(apiKey string) *DeepgramSpeakTTS {
	return &DeepgramSpeakTTS{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/speak",
		voice:  "aura-2-odysseus-en",
	}
}

func (d *DeepgramSpeakTTS) Name() string { return "deepgram-speak" }

func (d *DeepgramSpeakTTS) Synthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language) ([]byte, error) {
	var audio []byte
	err := d.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	return audio, err
}

func (d *DeepgramSpeakTTS) StreamSynthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language, onChunk func([]byte) error) error {
	model := d.voice
	if voice != "" {
		model = string(voice)
	}

	reqURL := fmt.Sprintf("%s?model=%s&encoding=linear16&sample_rate=16000&container=none", d.url, model)
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+d.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("deepgram speak error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return streamChunked(resp.Body, onChunk)
}

func (d *DeepgramSpeakTTS) Abort() error { return nil }

// streamChunked reads r to completion, delivering onChunk in >=minChunkBytes
// pieces (the 16KiB boundary tts_service.py enforces before yielding audio
// to the websocket).
func streamChunked(r io.Reader, onChunk func([]byte) error) error {
	buf := make([]byte, 8192)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if len(pending) >= minChunkBytes {
				if cerr := onChunk(pending); cerr != nil {
					return cerr
				}
				pending = nil
			}
		}
		if err == io.EOF {
			if len(pending) > 0 {
				return onChunk(pending)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Fallback tries the primary provider and, on failure, the secondary —
// matching tts_service.py's try/except around synthesize_cartesia falling
// through to synthesize_deepgram.
type Fallback struct {
	primary   providers.TTSProvider
	secondary providers.TTSProvider
}

func NewFallback(primary, secondary providers.TTSProvider) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Name() string { return "tts-fallback(" + f.primary.Name() + "," + f.secondary.Name() + ")" }

func (f *Fallback) Synthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language) ([]byte, error) {
	audio, err := f.primary.Synthesize(ctx, text, voice, lang)
	if err == nil {
		return audio, nil
	}
	return f.secondary.Synthesize(ctx, text, voice, lang)
}

func (f *Fallback) StreamSynthesize(ctx context.Context, text string, voice providers.Voice, lang providers.Language, onChunk func([]byte) error) error {
	err := f.primary.StreamSynthesize(ctx, text, voice, lang, onChunk)
	if err == nil {
		return nil
	}
	return f.secondary.StreamSynthesize(ctx, text, voice, lang, onChunk)
}

func (f *Fallback) Abort() error {
	err1 := f.primary.Abort()
	err2 := f.secondary.Abort()
	if err1 != nil {
		return err1
	}
	return err2
}
