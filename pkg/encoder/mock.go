package encoder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// MockEngine returns deterministic embeddings for local runs and tests.
// Unknown texts get a stable hash-derived vector, so identical input always
// yields the identical embedding.
type MockEngine struct {
	vectors map[string][]float32
	dims    int
	fail    bool

	// Calls counts Embed and EmbedBatch invocations.
	Calls int
}

// NewMockEngine creates a mock engine with the given dimensionality.
func NewMockEngine(dims int) *MockEngine {
	if dims <= 0 {
		dims = 8
	}
	return &MockEngine{vectors: make(map[string][]float32), dims: dims}
}

// SetVector pins the embedding returned for a given text.
func (e *MockEngine) SetVector(text string, vec []float32) {
	e.vectors[text] = vec
}

// Fail makes every call return ErrUnavailable.
func (e *MockEngine) Fail(fail bool) {
	e.fail = fail
}

// Name returns the engine identifier.
func (e *MockEngine) Name() string { return "mock" }

// Dims returns the embedding dimensionality.
func (e *MockEngine) Dims() int { return e.dims }

// Embed generates a deterministic embedding for a single text.
func (e *MockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates deterministic embeddings for multiple texts.
func (e *MockEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.Calls++
	if e.fail {
		return nil, ErrUnavailable
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		if pinned, ok := e.vectors[text]; ok {
			vecs[i] = pinned
			continue
		}
		vecs[i] = e.hashVector(text)
	}
	return vecs, nil
}

func (e *MockEngine) hashVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, e.dims)
	var norm float64
	for i := range vec {
		raw := binary.BigEndian.Uint32(sum[(i*4)%28:])
		v := float32(raw%1000)/500.0 - 1.0
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
