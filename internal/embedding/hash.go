package embedding

import (
	"context"
	"strings"
)

const (
	hashModulus = 1_000_000
	// DefaultHashDimensions is used when no model dimension is configured.
	DefaultHashDimensions = 128
)

// HashEmbedder is a deterministic, model-free embedder. It is the fallback when no model is
// available and the fixture used throughout the tests. Vectors are not normalized.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder with the given dimension (DefaultHashDimensions if <= 0).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed hashes the lower-cased UTF-8 bytes of text once per output dimension. Component i is
// h_i/1e6 - 1 where h_i = fold of (h*31 + b + i*j) mod 1e6 over bytes b at index j.
// The empty string yields a vector of -1.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	data := []byte(strings.ToLower(text))
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		var h int64
		for j, b := range data {
			h = (h*31 + int64(b) + int64(i)*int64(j)) % hashModulus
		}
		emb[i] = float32(float64(h%(2*hashModulus))/1e6 - 1)
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns "hash".
func (e *HashEmbedder) Name() string {
	return "hash"
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
