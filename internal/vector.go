package internal

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Neighbor is a pool item close to a query embedding.
type Neighbor struct {
	Name  Name
	Score float64 // cosine similarity, higher is closer
}

type VectorIndex interface {
	Add(ctx context.Context, name Name, vec []float64) error
	Remove(ctx context.Context, name Name) error
	Search(ctx context.Context, query []float64, k int) ([]Neighbor, error)
	Build(ctx context.Context, numTrees int) error
	Save(ctx context.Context) error
	Load(ctx context.Context) error
	Contains(ctx context.Context, name Name) bool
}

// EncodeEmbedding stores a vector as little-endian IEEE 754 float64 values
// without a length prefix.
func EncodeEmbedding(vec []float64) []byte {
	b := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

func DecodeEmbedding(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float64, len(b)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return vec, nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
