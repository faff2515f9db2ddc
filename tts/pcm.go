package tts

import (
	"math"
	"time"
)

// PCM16Max is the largest magnitude produced by Quantize.
const PCM16Max = 32767

// Normalize scales the waveform in place so its peak absolute value is 1.0.
// A silent buffer (peak 0) is returned unchanged; dividing by its peak would
// produce NaNs. Non-finite samples are treated as silence.
func Normalize(samples []float32) []float32 {
	var peak float64
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			samples[i] = 0
			continue
		}
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	if peak == 0 {
		return samples
	}

	for i, s := range samples {
		samples[i] = float32(float64(s) / peak)
	}
	return samples
}

// Quantize converts normalized samples to signed 16-bit PCM by scaling with
// PCM16Max and truncating toward zero. No dithering is applied.
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Trunc(float64(s) * PCM16Max)
		switch {
		case v > PCM16Max:
			v = PCM16Max
		case v < -PCM16Max:
			v = -PCM16Max
		case math.IsNaN(v):
			v = 0
		}
		out[i] = int16(v)
	}
	return out
}

// SamplesDuration returns the playback length of n mono samples.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(sampleRate) * float64(time.Second))
}
