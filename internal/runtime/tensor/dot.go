package tensor

// DotProduct computes the dot product of two equal-length float32 slices.
// The hot loops in the vocoder (per-tap gated convolutions, the im2col GEMM)
// funnel through this kernel.
func DotProduct(a, b []float32) float32 {
	return dotF32(a, b)
}

func dotF32(a, b []float32) float32 {
	var sum float32

	// Unrolled by four; the tail is handled below.
	n := len(a) &^ 3
	for i := 0; i < n; i += 4 {
		sum += a[i]*b[i] + a[i+1]*b[i+1] + a[i+2]*b[i+2] + a[i+3]*b[i+3]
	}

	for i := n; i < len(a); i++ {
		sum += a[i] * b[i]
	}

	return sum
}

// Axpy computes y += alpha * x over equal-length slices.
func Axpy(alpha float32, x, y []float32) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}
