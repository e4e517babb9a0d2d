package safetensors

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func encodeFixture(t *testing.T) []byte {
	t.Helper()

	data, err := EncodeTensors([]Tensor{
		{Name: "beta", Shape: []int64{2, 2}, Data: []float32{1, 2, 3, 4}},
		{Name: "alpha", Shape: []int64{3}, Data: []float32{-1, 0, 1}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	return data
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := OpenStoreFromBytes(encodeFixture(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if diff := cmp.Diff([]string{"alpha", "beta"}, store.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	if !store.Has("alpha") || store.Has("gamma") {
		t.Error("Has reports wrong membership")
	}

	tn, err := store.TensorWithShape("beta", []int64{2, 2})
	if err != nil {
		t.Fatalf("tensor: %v", err)
	}

	if diff := cmp.Diff([]float32{1, 2, 3, 4}, tn.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreShapeMismatch(t *testing.T) {
	store, err := OpenStoreFromBytes(encodeFixture(t))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.TensorWithShape("alpha", []int64{4}); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestStoreMissingTensorListsAvailable(t *testing.T) {
	store, err := OpenStoreFromBytes(encodeFixture(t))
	if err != nil {
		t.Fatal(err)
	}

	_, err = store.Tensor("gamma")
	if err == nil || !strings.Contains(err.Error(), "alpha") {
		t.Errorf("error should name available tensors, got: %v", err)
	}
}

func TestWriteFileAndOpenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.safetensors")

	if err := WriteFile(path, []Tensor{
		{Name: "v", Shape: []int64{2}, Data: []float32{5, 6}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	tn, err := store.Tensor("v")
	if err != nil {
		t.Fatal(err)
	}

	if tn.Data[0] != 5 || tn.Data[1] != 6 {
		t.Errorf("data = %v, want [5 6]", tn.Data)
	}
}

// buildRaw assembles a store payload with an arbitrary dtype for testing the
// half-precision read paths.
func buildRaw(t *testing.T, dtype string, payload []byte, shape string) []byte {
	t.Helper()

	header := `{"h":{"dtype":"` + dtype + `","shape":` + shape + `,"data_offsets":[0,` + strconv.Itoa(len(payload)) + `]}}`

	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)

	return out
}

func TestStoreReadsF16(t *testing.T) {
	// 1.0 and -2.0 in IEEE half precision.
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:], 0x3c00)
	binary.LittleEndian.PutUint16(payload[2:], 0xc000)

	store, err := OpenStoreFromBytes(buildRaw(t, "F16", payload, "[2]"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	tn, err := store.Tensor("h")
	if err != nil {
		t.Fatal(err)
	}

	if tn.Data[0] != 1 || tn.Data[1] != -2 {
		t.Errorf("F16 decode = %v, want [1 -2]", tn.Data)
	}
}

func TestStoreReadsBF16(t *testing.T) {
	// bfloat16 is the top 16 bits of a float32.
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:], uint16(math.Float32bits(1.5)>>16))
	binary.LittleEndian.PutUint16(payload[2:], uint16(math.Float32bits(-0.25)>>16))

	store, err := OpenStoreFromBytes(buildRaw(t, "BF16", payload, "[2]"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	tn, err := store.Tensor("h")
	if err != nil {
		t.Fatal(err)
	}

	if tn.Data[0] != 1.5 || tn.Data[1] != -0.25 {
		t.Errorf("BF16 decode = %v, want [1.5 -0.25]", tn.Data)
	}
}

func TestOpenStoreRejectsTruncated(t *testing.T) {
	data := encodeFixture(t)

	if _, err := OpenStoreFromBytes(data[:len(data)-3]); err == nil {
		t.Error("expected error for truncated payload")
	}

	if _, err := OpenStoreFromBytes(data[:4]); err == nil {
		t.Error("expected error for missing header")
	}
}

func TestEncodeTensorsValidates(t *testing.T) {
	if _, err := EncodeTensors(nil); err == nil {
		t.Error("expected error for empty tensor list")
	}

	if _, err := EncodeTensors([]Tensor{
		{Name: "", Shape: []int64{1}, Data: []float32{1}},
	}); err == nil {
		t.Error("expected error for empty name")
	}

	if _, err := EncodeTensors([]Tensor{
		{Name: "a", Shape: []int64{2}, Data: []float32{1}},
	}); err == nil {
		t.Error("expected error for element count mismatch")
	}

	if _, err := EncodeTensors([]Tensor{
		{Name: "a", Shape: []int64{1}, Data: []float32{1}},
		{Name: "a", Shape: []int64{1}, Data: []float32{2}},
	}); err == nil {
		t.Error("expected error for duplicate name")
	}
}
