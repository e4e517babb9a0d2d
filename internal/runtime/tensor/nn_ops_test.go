package tensor

import (
	"math"
	"testing"
)

func TestSoftmaxVec(t *testing.T) {
	logits := []float32{1, 2, 3}

	if err := SoftmaxVec(logits); err != nil {
		t.Fatal(err)
	}

	var sum float64
	for _, v := range logits {
		sum += float64(v)
	}

	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("probabilities sum to %v, want 1", sum)
	}

	if !(logits[2] > logits[1] && logits[1] > logits[0]) {
		t.Errorf("softmax broke ordering: %v", logits)
	}
}

func TestSoftmaxVecLargeLogits(t *testing.T) {
	// Max subtraction keeps huge logits finite.
	logits := []float32{1000, 1001}

	if err := SoftmaxVec(logits); err != nil {
		t.Fatal(err)
	}

	for i, v := range logits {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("logit %d is not finite: %v", i, v)
		}
	}
}

func TestSoftmaxVecEmpty(t *testing.T) {
	if err := SoftmaxVec(nil); err == nil {
		t.Error("expected error for empty vector")
	}
}

func TestSoftmaxDim(t *testing.T) {
	x := mustNew(t, []float32{
		0, 0,
		1, 1,
	}, []int64{2, 2})

	out, err := Softmax(x, 1)
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range out.RawData() {
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Errorf("uniform rows should give 0.5, got %v", out.RawData())
			break
		}
	}
}

func TestLinear(t *testing.T) {
	x := mustNew(t, []float32{1, 2}, []int64{1, 2})
	w := mustNew(t, []float32{
		1, 0,
		0, 1,
		1, 1,
	}, []int64{3, 2})
	b := mustNew(t, []float32{10, 20, 30}, []int64{3})

	out, err := Linear(x, w, b)
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{11, 22, 33}
	got := out.RawData()

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLinearShapeMismatch(t *testing.T) {
	x := mustNew(t, []float32{1, 2, 3}, []int64{1, 3})
	w := mustNew(t, []float32{1, 1}, []int64{1, 2})

	if _, err := Linear(x, w, nil); err == nil {
		t.Error("expected error for in-dimension mismatch")
	}
}

func TestDotProduct(t *testing.T) {
	// Length 9 exercises both the unrolled body and the tail.
	a := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	b := []float32{9, 8, 7, 6, 5, 4, 3, 2, 1}

	if got := DotProduct(a, b); got != 165 {
		t.Errorf("dot = %v, want 165", got)
	}
}

func TestAxpy(t *testing.T) {
	y := []float32{1, 1, 1}

	Axpy(2, []float32{1, 2, 3}, y)

	want := []float32{3, 5, 7}
	for i := range want {
		if y[i] != want[i] {
			t.Errorf("y[%d] = %v, want %v", i, y[i], want[i])
		}
	}
}
