package vector

import (
	"math"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, 0}
	out := Decode(Encode(in))

	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value %d: expected %f, got %f", i, in[i], out[i])
		}
	}
}

func TestDecode_Empty(t *testing.T) {
	if got := Decode(nil); got != nil {
		t.Errorf("expected nil for empty blob, got %v", got)
	}
}

func TestCosine_Identical(t *testing.T) {
	v := []float32{1, 2, 3}
	score, err := Cosine(v, v)
	if err != nil {
		t.Fatalf("Cosine returned error: %v", err)
	}
	if math.Abs(float64(score)-1.0) > 1e-6 {
		t.Errorf("expected similarity 1.0, got %f", score)
	}
}

func TestCosine_Orthogonal(t *testing.T) {
	score, err := Cosine([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("Cosine returned error: %v", err)
	}
	if math.Abs(float64(score)) > 1e-6 {
		t.Errorf("expected similarity 0, got %f", score)
	}
}

func TestCosine_DimensionMismatch(t *testing.T) {
	if _, err := Cosine([]float32{1}, []float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	score, err := Cosine([]float32{0, 0}, []float32{1, 1})
	if err != nil {
		t.Fatalf("Cosine returned error: %v", err)
	}
	if score != 0 {
		t.Errorf("expected 0 for zero vector, got %f", score)
	}
}
