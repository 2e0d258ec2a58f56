package internal

import (
	"math"
	"testing"
)

func TestEmbeddingEncoding(t *testing.T) {
	tests := []struct {
		name string
		vec  []float64
	}{
		{"empty", []float64{}},
		{"small", []float64{1.5, -2.25, 0}},
		{"extremes", []float64{math.MaxFloat64, math.SmallestNonzeroFloat64, -0.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := EncodeEmbedding(tt.vec)
			if len(blob) != len(tt.vec)*8 {
				t.Fatalf("blob length = %d, want %d", len(blob), len(tt.vec)*8)
			}
			got, err := DecodeEmbedding(blob)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != len(tt.vec) {
				t.Fatalf("decoded %d values, want %d", len(got), len(tt.vec))
			}
			for i := range got {
				if math.Float64bits(got[i]) != math.Float64bits(tt.vec[i]) {
					t.Errorf("value %d = %v, want %v", i, got[i], tt.vec[i])
				}
			}
		})
	}
}

func TestDecodeEmbeddingBadLength(t *testing.T) {
	if _, err := DecodeEmbedding(make([]byte, 7)); err == nil {
		t.Error("expected error for truncated blob")
	}
}
