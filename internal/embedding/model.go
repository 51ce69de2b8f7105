// Package embedding turns Japanese text into fixed-dimension vectors and compares them.
package embedding

import (
	"context"
)

//go:generate mockgen -source=model.go -destination=../mocks/embedding/mock_model.go -package=mock_embedding

// Model is a loaded embedding model.
// Encode returns exactly one vector of Dimension() values per input text, in input order.
type Model interface {
	Name() string
	Dimension() int
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}
