package ops

import (
	"math"
	"testing"

	"github.com/example/go-wavevoc/internal/runtime/tensor"
)

func mustTensorT(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	tn, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return tn
}

func seqDataT(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i%17) * 0.25
	}

	return data
}

func equalApprox(a, b []float32, tol float64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > tol {
			return false
		}
	}

	return true
}

func TestConv1D(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})
	kernel := mustTensorT(t, []float32{1, 1}, []int64{1, 1, 2})

	out, err := Conv1D(input, kernel, nil, 1, 0, 1, 1)
	if err != nil {
		t.Fatalf("conv1d: %v", err)
	}

	want := []float32{3, 5, 7}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("conv1d = %v, want %v", got, want)
	}
}

func TestConv1DDilated(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3, 4, 5}, []int64{1, 1, 5})
	kernel := mustTensorT(t, []float32{1, 1}, []int64{1, 1, 2})

	out, err := Conv1D(input, kernel, nil, 1, 0, 2, 1)
	if err != nil {
		t.Fatalf("conv1d dilated: %v", err)
	}

	// Taps at t and t+2.
	want := []float32{4, 6, 8}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("conv1d dilated = %v, want %v", got, want)
	}
}

func TestConv1DBias(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3}, []int64{1, 1, 3})
	kernel := mustTensorT(t, []float32{2}, []int64{1, 1, 1})
	bias := mustTensorT(t, []float32{10}, []int64{1})

	out, err := Conv1D(input, kernel, bias, 1, 0, 1, 1)
	if err != nil {
		t.Fatalf("conv1d: %v", err)
	}

	want := []float32{12, 14, 16}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("conv1d = %v, want %v", got, want)
	}
}

func TestConv1DParallel(t *testing.T) {
	SetConvWorkers(4)
	defer SetConvWorkers(1)

	// Larger tensor so there is real work to split across goroutines.
	input := mustTensorT(t, seqDataT(1*16*64), []int64{1, 16, 64})
	kernel := mustTensorT(t, seqDataT(32*16*3), []int64{32, 16, 3})
	bias := mustTensorT(t, seqDataT(32), []int64{32})

	got, err := Conv1D(input, kernel, bias, 1, 1, 1, 1)
	if err != nil {
		t.Fatalf("conv1d parallel: %v", err)
	}

	SetConvWorkers(1)

	want, err := Conv1D(input, kernel, bias, 1, 1, 1, 1)
	if err != nil {
		t.Fatalf("conv1d sequential: %v", err)
	}

	if !equalApprox(got.Data(), want.Data(), 1e-4) {
		t.Fatalf("parallel conv1d differs from sequential")
	}
}

func TestConv1DGroupedPath(t *testing.T) {
	input := mustTensorT(t, []float32{
		1, 2, 3, 4,
		10, 20, 30, 40,
	}, []int64{1, 2, 4})
	kernel := mustTensorT(t, []float32{
		1, 1, // oc0
		1, 1, // oc1
	}, []int64{2, 1, 2})

	out, err := Conv1D(input, kernel, nil, 1, 0, 1, 2)
	if err != nil {
		t.Fatalf("Conv1D(groups=2): %v", err)
	}

	want := []float32{
		3, 5, 7,
		30, 50, 70,
	}
	if !equalApprox(out.Data(), want, 0) {
		t.Fatalf("Conv1D(groups=2) = %v, want %v", out.Data(), want)
	}
}

func TestConv1DLeftPadMatchesExplicitPrepend(t *testing.T) {
	input := mustTensorT(t, []float32{
		1, 2, 3, 4,
		10, 20, 30, 40,
	}, []int64{1, 2, 4})
	kernel := mustTensorT(t, []float32{
		1, 1, 1, // oc0, ic0
		1, 1, 1, // oc0, ic1
		2, 2, 2, // oc1, ic0
		2, 2, 2, // oc1, ic1
	}, []int64{2, 2, 3})
	bias := mustTensorT(t, []float32{0.25, -0.5}, []int64{2})

	const leftPad = int64(2)
	const stride = int64(1)
	const dilation = int64(1)

	got, err := Conv1DLeftPad(input, kernel, bias, stride, leftPad, dilation, 1)
	if err != nil {
		t.Fatalf("Conv1DLeftPad: %v", err)
	}

	shape := input.Shape()

	pad, err := tensor.Zeros([]int64{shape[0], shape[1], leftPad})
	if err != nil {
		t.Fatalf("Zeros: %v", err)
	}

	padded, err := tensor.Concat([]*tensor.Tensor{pad, input}, 2)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}

	want, err := Conv1D(padded, kernel, bias, stride, 0, dilation, 1)
	if err != nil {
		t.Fatalf("Conv1D explicit prepend: %v", err)
	}

	if !equalApprox(got.Data(), want.Data(), 1e-5) {
		t.Fatalf("Conv1DLeftPad = %v, want %v", got.Data(), want.Data())
	}
}

func TestConv1DCausalPreservesLength(t *testing.T) {
	// Left padding (k-1)*d keeps the sequence length unchanged, which is what
	// every layer of the generation stack relies on.
	const k = 2
	const d = 4

	input := mustTensorT(t, seqDataT(1*3*20), []int64{1, 3, 20})
	kernel := mustTensorT(t, seqDataT(5*3*k), []int64{5, 3, k})

	out, err := Conv1DLeftPad(input, kernel, nil, 1, (k-1)*d, d, 1)
	if err != nil {
		t.Fatalf("Conv1DLeftPad: %v", err)
	}

	shape := out.Shape()
	if shape[2] != 20 {
		t.Fatalf("output length %d, want 20", shape[2])
	}
}

func TestConv1DErrors(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})
	kernel := mustTensorT(t, []float32{1, 1}, []int64{1, 1, 2})

	if _, err := Conv1D(input, kernel, nil, 0, 0, 1, 1); err == nil {
		t.Error("expected error for zero stride")
	}

	if _, err := Conv1D(input, kernel, nil, 1, 0, 0, 1); err == nil {
		t.Error("expected error for zero dilation")
	}

	badKernel := mustTensorT(t, []float32{1, 1}, []int64{1, 2, 1})
	if _, err := Conv1D(input, badKernel, nil, 1, 0, 1, 1); err == nil {
		t.Error("expected error for channel mismatch")
	}
}
