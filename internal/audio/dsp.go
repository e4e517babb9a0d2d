package audio

import "math"

// Hook is a post-processing stage applied to float PCM before encoding.
type Hook func(samples []float32) []float32

// ApplyHooks runs hooks over samples in order.
func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// PeakNormalize scales samples in place so the peak magnitude is 1. Silence
// is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32

	for _, v := range samples {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak = a
		}
	}

	if peak == 0 {
		return samples
	}

	inv := 1 / peak
	for i := range samples {
		samples[i] *= inv
	}

	return samples
}

// dcBlockCutoffHz is the corner frequency of the DC blocking high-pass.
const dcBlockCutoffHz = 20.0

// DCBlock removes DC offset with a one-pole high-pass filter:
// y[n] = x[n] - x[n-1] + R*y[n-1].
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || sampleRate < 1 {
		return samples
	}

	r := float32(1 - 2*math.Pi*dcBlockCutoffHz/float64(sampleRate))

	out := make([]float32, len(samples))
	out[0] = samples[0]

	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - samples[i-1] + r*out[i-1]
	}

	return out
}

// FadeIn applies a linear ramp over the first fadeMs milliseconds in place.
func FadeIn(samples []float32, sampleRate int, fadeMs float64) []float32 {
	n := fadeSampleCount(len(samples), sampleRate, fadeMs)

	for i := range n {
		samples[i] *= float32(i) / float32(n)
	}

	return samples
}

// FadeOut applies a linear ramp over the last fadeMs milliseconds in place.
func FadeOut(samples []float32, sampleRate int, fadeMs float64) []float32 {
	n := fadeSampleCount(len(samples), sampleRate, fadeMs)
	start := len(samples) - n

	for i := start; i < len(samples); i++ {
		samples[i] *= float32(len(samples)-1-i) / float32(n)
	}

	return samples
}

func fadeSampleCount(total, sampleRate int, fadeMs float64) int {
	if total == 0 || sampleRate < 1 || fadeMs <= 0 {
		return 0
	}

	n := int(fadeMs / 1000 * float64(sampleRate))
	if n > total {
		n = total
	}

	return n
}
