package qdrant

import (
	"context"
	"hash/fnv"
	"strings"
)

// HashEmbedder is a deterministic, dependency-free fallback Embedder: it
// hashes overlapping trigrams into a fixed-size vector. It exists so the
// engine can exercise the long-term recall path without a network-backed
// embedding model configured; production deployments should supply a real
// Embedder instead.
type HashEmbedder struct {
	Dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 128
	}
	return &HashEmbedder{Dims: dims}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.Dims)
	text = strings.ToLower(text)
	for i := 0; i < len(text)-2; i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text[i : i+3]))
		idx := int(h.Sum32()) % e.Dims
		if idx < 0 {
			idx += e.Dims
		}
		vec[idx]++
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1) / sqrt32(norm)
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func sqrt32(x float32) float32 {
	// Newton's method, a handful of iterations is plenty for a
	// normalization scale factor.
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 8; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
