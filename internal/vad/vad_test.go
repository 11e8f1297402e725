package vad

import (
	"encoding/binary"
	"testing"
	"time"
)

func silentChunk(n int) []byte {
	return make([]byte, n*2)
}

func loudChunk(n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(20000)))
	}
	return buf
}

func TestEnergyVADSpeechStartRequiresConfirmedFrames(t *testing.T) {
	v := NewEnergyVAD(0.1, 200*time.Millisecond)
	v.SetMinConfirmed(3)

	var started bool
	for i := 0; i < 3; i++ {
		ev, err := v.Process(loudChunk(256))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev != nil && ev.Type == SpeechStart {
			started = true
		}
	}
	if !started {
		t.Fatal("expected speech start after minConfirmed loud frames")
	}
}

func TestEnergyVADSilenceBelowThreshold(t *testing.T) {
	v := NewEnergyVAD(0.5, 100*time.Millisecond)
	ev, err := v.Process(silentChunk(256))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Type != Silence {
		t.Fatalf("expected silence event, got %+v", ev)
	}
}

func TestEnergyVADSpeechEndAfterSilenceLimit(t *testing.T) {
	v := NewEnergyVAD(0.1, 20*time.Millisecond)
	v.SetMinConfirmed(1)
	v.Process(loudChunk(256))
	// The silence timer starts at the first silent frame.
	v.Process(silentChunk(256))
	time.Sleep(30 * time.Millisecond)
	ev, err := v.Process(silentChunk(256))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Type != SpeechEnd {
		t.Fatalf("expected speech end, got %+v", ev)
	}
}

func TestFramedGateClassifiesByPeakFrame(t *testing.T) {
	g := NewFramedGate(1, 16000, 100*time.Millisecond)
	g.energy.SetMinConfirmed(1)
	// one frame's worth of loud audio embedded in an otherwise silent chunk
	chunk := append(silentChunk(480), loudChunk(480)...)
	ev, err := g.Process(chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Type != SpeechStart {
		t.Fatalf("expected speech start from peak frame, got %+v", ev)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	v := NewEnergyVAD(0.1, 50*time.Millisecond)
	v.SetMinConfirmed(1)
	v.Process(loudChunk(256))
	clone := v.Clone()
	if clone.(*EnergyVAD).IsSpeaking() {
		t.Fatal("clone should start with fresh state, not copy isSpeaking")
	}
}
