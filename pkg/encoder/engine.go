// Package encoder turns text into fixed-length numeric vectors.
// The pipeline consumes it as an external capability: deterministic for
// identical input, and replaceable by a mock in tests.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrUnavailable reports that the embedding backend cannot be reached.
// Callers degrade to a fallback plan instead of surfacing this to the user.
var ErrUnavailable = errors.New("embedding encoder unavailable")

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dims returns the dimensionality of the embeddings.
	Dims() int

	// Name returns the engine identifier.
	Name() string
}

// Cosine computes the cosine similarity between two vectors. Returns an
// error on dimension mismatch; zero for zero-magnitude inputs.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
