package audioproc

import "testing"

func TestNoiseGateAttenuatesQuietSamples(t *testing.T) {
	in := []float64{0.001, 0.5, -0.002, -0.5}
	out := NoiseGate(in, 0.008, 0.2)
	if out[0] != 0.001*0.2 {
		t.Errorf("expected quiet positive sample attenuated, got %v", out[0])
	}
	if out[1] != 0.5 {
		t.Errorf("expected loud sample untouched, got %v", out[1])
	}
	if out[2] != -0.002*0.2 {
		t.Errorf("expected quiet negative sample attenuated, got %v", out[2])
	}
}

func TestProcessRoundTripsLength(t *testing.T) {
	pcm := make([]byte, 512)
	for i := range pcm {
		pcm[i] = byte(i % 7)
	}
	out := Process(pcm, 16000)
	if len(out) != len(pcm) {
		t.Fatalf("expected same length, got %d want %d", len(out), len(pcm))
	}
}

func TestHighPassZeroesDCOffset(t *testing.T) {
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 0.5 // pure DC, zero Hz
	}
	out := HighPass(samples, 50, 16000)
	for i, v := range out {
		if v > 0.01 || v < -0.01 {
			t.Fatalf("expected DC component removed at index %d, got %v", i, v)
		}
	}
}
