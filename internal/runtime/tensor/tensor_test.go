package tensor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustNew(t *testing.T, data []float32, shape []int64) *Tensor {
	t.Helper()

	tn, err := New(data, shape)
	if err != nil {
		t.Fatalf("New(%v, %v): %v", data, shape, err)
	}

	return tn
}

func TestNewValidatesShape(t *testing.T) {
	if _, err := New([]float32{1, 2, 3}, []int64{2, 2}); err == nil {
		t.Error("expected error for mismatched data length")
	}

	if _, err := New(nil, []int64{-1}); err == nil {
		t.Error("expected error for negative dimension")
	}
}

func TestNewCopiesData(t *testing.T) {
	src := []float32{1, 2}

	tn := mustNew(t, src, []int64{2})
	src[0] = 99

	if tn.RawData()[0] != 1 {
		t.Error("tensor shares memory with the input slice")
	}
}

func TestZeros(t *testing.T) {
	tn, err := Zeros([]int64{2, 3})
	if err != nil {
		t.Fatal(err)
	}

	if tn.ElemCount() != 6 || tn.Rank() != 2 {
		t.Errorf("elems=%d rank=%d, want 6 and 2", tn.ElemCount(), tn.Rank())
	}

	for _, v := range tn.RawData() {
		if v != 0 {
			t.Fatal("zeros tensor has non-zero element")
		}
	}
}

func TestReshape(t *testing.T) {
	tn := mustNew(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	r, err := tn.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int64{3, 2}, r.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(tn.Data(), r.Data()); diff != "" {
		t.Errorf("data changed (-want +got):\n%s", diff)
	}

	if _, err := tn.Reshape([]int64{4, 2}); err == nil {
		t.Error("expected error for element count mismatch")
	}
}

func TestTranspose2D(t *testing.T) {
	tn := mustNew(t, []float32{
		1, 2, 3,
		4, 5, 6,
	}, []int64{2, 3})

	tr, err := tn.Transpose(0, 1)
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{
		1, 4,
		2, 5,
		3, 6,
	}

	if diff := cmp.Diff(want, tr.RawData()); diff != "" {
		t.Errorf("transpose mismatch (-want +got):\n%s", diff)
	}
}

func TestTransposeNegativeDims(t *testing.T) {
	tn := mustNew(t, []float32{1, 2, 3, 4}, []int64{2, 2})

	tr, err := tn.Transpose(-2, -1)
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{1, 3, 2, 4}
	if diff := cmp.Diff(want, tr.RawData()); diff != "" {
		t.Errorf("transpose mismatch (-want +got):\n%s", diff)
	}
}

func TestConcatDim1(t *testing.T) {
	a := mustNew(t, []float32{1, 2, 3, 4}, []int64{2, 2})
	b := mustNew(t, []float32{10, 20}, []int64{2, 1})

	out, err := Concat([]*Tensor{a, b}, 1)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int64{2, 3}, out.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}

	want := []float32{
		1, 2, 10,
		3, 4, 20,
	}

	if diff := cmp.Diff(want, out.RawData()); diff != "" {
		t.Errorf("concat mismatch (-want +got):\n%s", diff)
	}
}

func TestConcatShapeMismatch(t *testing.T) {
	a := mustNew(t, []float32{1, 2}, []int64{1, 2})
	b := mustNew(t, []float32{1, 2, 3}, []int64{1, 3})

	if _, err := Concat([]*Tensor{a, b}, 0); err == nil {
		t.Error("expected error for mismatched non-concat dims")
	}
}

func TestCloneIndependent(t *testing.T) {
	tn := mustNew(t, []float32{1, 2}, []int64{2})
	dup := tn.Clone()

	dup.RawData()[0] = 42

	if tn.RawData()[0] != 1 {
		t.Error("clone shares memory with the original")
	}
}
