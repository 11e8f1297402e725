// Package vad implements speech/silence classification over raw 16-bit PCM
// audio frames.
//
// Grounded on the teacher's pkg/orchestrator/vad.go RMSVAD (kept as
// EnergyVAD, the zero-dependency fallback) and on original_source's
// services/vad_service.py, which prefers a framed classifier
// (webrtcvad, mode=1, 30ms frames at 16kHz) and falls back to energy-based
// detection only when the framed classifier is unavailable. FramedGate
// reproduces that framing contract (fixed 30ms frames) in pure Go against
// an energy-per-frame decision, since no cgo WebRTC VAD binding exists
// anywhere in the retrieved pack (see DESIGN.md).
package vad

import (
	"math"
	"time"
)

// EventType names a speech/silence transition.
type EventType string

const (
	SpeechStart EventType = "SPEECH_START"
	SpeechEnd   EventType = "SPEECH_END"
	Silence     EventType = "SILENCE"
)

// Event reports a VAD state transition at a point in time.
type Event struct {
	Type      EventType
	Timestamp int64
}

// Gate classifies incoming audio chunks as speech or silence and emits
// transition events. Implementations are not safe for concurrent use from
// more than one goroutine; one Gate belongs to one Connection.
type Gate interface {
	Process(chunk []byte) (*Event, error)
	Reset()
	Clone() Gate
	Name() string
}

// EnergyVAD is a root-mean-square based detector, the teacher's RMSVAD kept
// verbatim in behavior as the dependency-free fallback path.
type EnergyVAD struct {
	threshold    float64
	silenceLimit time.Duration
	isSpeaking   bool
	silenceStart time.Time

	consecutiveFrames int
	minConfirmed      int
	lastRMS           float64
}

// NewEnergyVAD creates an RMS-threshold detector.
func NewEnergyVAD(threshold float64, silenceLimit time.Duration) *EnergyVAD {
	return &EnergyVAD{
		threshold:    threshold,
		silenceLimit: silenceLimit,
		minConfirmed: 7,
	}
}

func (v *EnergyVAD) SetMinConfirmed(count int)    { v.minConfirmed = count }
func (v *EnergyVAD) SetThreshold(threshold float64) { v.threshold = threshold }
func (v *EnergyVAD) Threshold() float64           { return v.threshold }
func (v *EnergyVAD) MinConfirmed() int            { return v.minConfirmed }
func (v *EnergyVAD) LastRMS() float64             { return v.lastRMS }
func (v *EnergyVAD) IsSpeaking() bool             { return v.isSpeaking }

func (v *EnergyVAD) Process(chunk []byte) (*Event, error) {
	rms := calculateRMS(chunk)
	v.lastRMS = rms
	now := time.Now()

	if rms > v.threshold {
		v.consecutiveFrames++
		if !v.isSpeaking {
			if v.consecutiveFrames >= v.minConfirmed {
				v.isSpeaking = true
				return &Event{Type: SpeechStart, Timestamp: now.UnixMilli()}, nil
			}
			return nil, nil
		}
		v.silenceStart = time.Time{}
		return nil, nil
	}

	v.consecutiveFrames = 0

	if v.isSpeaking {
		if v.silenceStart.IsZero() {
			v.silenceStart = now
		}
		if now.Sub(v.silenceStart) >= v.silenceLimit {
			v.isSpeaking = false
			v.silenceStart = time.Time{}
			return &Event{Type: SpeechEnd, Timestamp: now.UnixMilli()}, nil
		}
	}

	return &Event{Type: Silence, Timestamp: now.UnixMilli()}, nil
}

func (v *EnergyVAD) Name() string { return "energy_vad" }

func (v *EnergyVAD) Reset() {
	v.isSpeaking = false
	v.silenceStart = time.Time{}
	v.consecutiveFrames = 0
}

func (v *EnergyVAD) Clone() Gate {
	return &EnergyVAD{
		threshold:    v.threshold,
		silenceLimit: v.silenceLimit,
		minConfirmed: v.minConfirmed,
	}
}

func calculateRMS(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(chunk)-1; i += 2 {
		sample := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(chunk)/2))
}

// FramedGate scans a chunk in fixed 30ms frames (one of webrtcvad's
// 10/20/30ms frame sizes) and classifies the whole chunk as speech if
// any contained frame exceeds the per-frame energy threshold — the same
// "any frame speech -> chunk speech" rule as services/vad_service.py's
// _webrtc_is_speech. Hysteresis/silence-hold state is delegated to an
// embedded EnergyVAD so the speech-start/speech-end transition semantics
// match the fallback path exactly.
type FramedGate struct {
	energy        *EnergyVAD
	sampleRate    int
	frameDuration time.Duration
	frameBytes    int
}

// NewFramedGate builds a frame-scanning gate. mode selects aggressiveness
// coarsely by tightening the per-frame RMS threshold (0 loosest .. 3
// tightest), matching webrtcvad's mode parameter.
func NewFramedGate(mode int, sampleRate int, silenceLimit time.Duration) *FramedGate {
	threshold := 0.02 + float64(mode)*0.015
	frameDuration := 30 * time.Millisecond
	frameBytes := int(float64(sampleRate) * frameDuration.Seconds()) * 2 // 16-bit mono

	return &FramedGate{
		energy:        NewEnergyVAD(threshold, silenceLimit),
		sampleRate:    sampleRate,
		frameDuration: frameDuration,
		frameBytes:    frameBytes,
	}
}

func (g *FramedGate) Process(chunk []byte) (*Event, error) {
	if len(chunk) < g.frameBytes {
		return g.energy.Process(chunk)
	}

	var peakFrame []byte
	var peakRMS float64
	for i := 0; i+g.frameBytes <= len(chunk); i += g.frameBytes {
		frame := chunk[i : i+g.frameBytes]
		rms := calculateRMS(frame)
		if rms > peakRMS {
			peakRMS = rms
			peakFrame = frame
		}
	}
	if peakFrame == nil {
		peakFrame = chunk[:g.frameBytes]
	}
	return g.energy.Process(peakFrame)
}

func (g *FramedGate) Reset() { g.energy.Reset() }

func (g *FramedGate) Clone() Gate {
	return &FramedGate{
		energy:        g.energy.Clone().(*EnergyVAD),
		sampleRate:    g.sampleRate,
		frameDuration: g.frameDuration,
		frameBytes:    g.frameBytes,
	}
}

func (g *FramedGate) Name() string { return "framed_vad" }

// IsSpeaking reports the underlying energy detector's current state.
func (g *FramedGate) IsSpeaking() bool { return g.energy.IsSpeaking() }
