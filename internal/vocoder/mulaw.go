package vocoder

import "math"

// EncodeMuLaw compresses a waveform sample in [-1, 1] to a quantization class
// index in [0, quantize-1].
func EncodeMuLaw(x float32, quantize int) int {
	mu := float64(quantize - 1)

	v := float64(x)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}

	fx := sign(v) * math.Log(1+mu*math.Abs(v)) / math.Log(1+mu)

	idx := int(math.Floor((fx+1)/2*mu + 0.5))
	if idx < 0 {
		idx = 0
	} else if idx > int(mu) {
		idx = int(mu)
	}

	return idx
}

// DecodeMuLaw expands a quantization class index back to a waveform sample
// in [-1, 1]. DecodeMuLaw(EncodeMuLaw(x, q), q) equals x up to quantization
// error.
func DecodeMuLaw(y int, quantize int) float32 {
	mu := float64(quantize - 1)

	fx := 2*float64(y)/mu - 1
	x := sign(fx) * (math.Pow(1+mu, math.Abs(fx)) - 1) / mu

	return float32(x)
}

// DecodeMuLawSlice expands class indices to float PCM.
func DecodeMuLawSlice(classes []int, quantize int) []float32 {
	out := make([]float32, len(classes))
	for i, c := range classes {
		out[i] = DecodeMuLaw(c, quantize)
	}

	return out
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
