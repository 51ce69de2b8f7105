// Package hashing provides a deterministic, dependency-free embedding model based on
// character n-gram feature hashing. It needs no model files or network access, which
// makes it the default for offline use and tests.
package hashing

import (
	"context"
	"hash/fnv"

	"github.com/at-ishikawa/kikitori/internal/embedding"
)

const (
	DefaultDimension = 384
	maxNGram         = 3
)

type Model struct {
	dimension int
}

var _ embedding.Model = (*Model)(nil)

func NewModel(dimension int) *Model {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Model{dimension: dimension}
}

func (m *Model) Name() string {
	return "hashing"
}

func (m *Model) Dimension() int {
	return m.dimension
}

func (m *Model) Close() error {
	return nil
}

// Encode hashes the character 1- to 3-grams of each text into signed buckets and
// L2-normalizes the result.
func (m *Model) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = m.encode(text)
	}
	return vectors, nil
}

func (m *Model) encode(text string) []float32 {
	v := make([]float32, m.dimension)
	runes := []rune(text)
	for n := 1; n <= maxNGram; n++ {
		for start := 0; start+n <= len(runes); start++ {
			h := fnv.New64a()
			_, _ = h.Write([]byte(string(runes[start : start+n])))
			sum := h.Sum64()
			bucket := int(sum % uint64(m.dimension))
			if sum>>63 == 1 {
				v[bucket] -= float32(n)
			} else {
				v[bucket] += float32(n)
			}
		}
	}
	return embedding.L2Normalize(v)
}
