package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 1

	previewRunes = 30
)

// ErrEmptyText is recorded on results whose input normalized to an empty string.
var ErrEmptyText = errors.New("empty text")

// Result is the outcome of embedding one text.
// A degraded result carries a zero vector of the model's dimension and the cause in Err,
// so callers can tell "no signal" apart from a valid vector.
type Result struct {
	Vector   []float32
	Degraded bool
	Err      error
}

// IsZero reports whether the result vector has no non-zero component.
func (r Result) IsZero() bool {
	return IsZero(r.Vector)
}

// Generator embeds Japanese text with a loaded Model.
// It is constructed once per process and shared by the content store and the search service.
type Generator struct {
	model       Model
	batchSize   int
	concurrency int
	normalize   bool
}

type Option func(*Generator)

// WithBatchSize sets how many texts are sent to the model per call.
func WithBatchSize(size int) Option {
	return func(g *Generator) {
		if size > 0 {
			g.batchSize = size
		}
	}
}

// WithConcurrency sets how many batches may be encoded at the same time.
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithNormalize toggles Normalize before encoding.
func WithNormalize(enabled bool) Option {
	return func(g *Generator) {
		g.normalize = enabled
	}
}

func NewGenerator(model Model, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		normalize:   true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ModelName returns the name of the underlying model.
func (g *Generator) ModelName() string {
	return g.model.Name()
}

// Dimension returns the embedding width of the active model.
func (g *Generator) Dimension() int {
	return g.model.Dimension()
}

// Close releases the model.
func (g *Generator) Close() error {
	return g.model.Close()
}

// InputText returns text as the model receives it.
func (g *Generator) InputText(text string) string {
	if g.normalize {
		return Normalize(text)
	}
	return text
}

// Embed embeds a single text.
func (g *Generator) Embed(ctx context.Context, text string) Result {
	return g.EmbedBatch(ctx, []string{text}, 0)[0]
}

// EmbedBatch embeds texts in batches of batchSize (the generator default when batchSize <= 0).
// The result has the same length and order as texts. It never fails: a batch the model
// cannot encode degrades every item in it to a zero vector, and each degraded item is logged.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string, batchSize int) []Result {
	if batchSize <= 0 {
		batchSize = g.batchSize
	}
	results := make([]Result, len(texts))

	// Empty inputs never reach the model
	inputs := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		text = g.InputText(text)
		if text == "" {
			results[i] = g.degraded(ErrEmptyText)
			continue
		}
		inputs = append(inputs, text)
		positions = append(positions, i)
	}

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for start := 0; start < len(inputs); start += batchSize {
		end := min(start+batchSize, len(inputs))
		eg.Go(func() error {
			vectors, err := g.encode(ctx, inputs[start:end])
			for j := start; j < end; j++ {
				if err != nil {
					results[positions[j]] = g.degraded(err)
					continue
				}
				results[positions[j]] = Result{Vector: vectors[j-start]}
			}
			return nil
		})
	}
	_ = eg.Wait()

	for i, r := range results {
		if r.Degraded {
			slog.Default().Warn("embedding degraded to zero vector",
				"model", g.model.Name(),
				"index", i,
				"text", preview(texts[i]),
				"error", r.Err)
		}
	}
	return results
}

func (g *Generator) encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors, err := g.model.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", g.model.Name(), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", g.model.Name(), len(vectors), len(texts))
	}
	dim := g.model.Dimension()
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%s returned dimension %d at %d, want %d", g.model.Name(), len(v), i, dim)
		}
	}
	return vectors, nil
}

func (g *Generator) degraded(err error) Result {
	return Result{
		Vector:   make([]float32, g.model.Dimension()),
		Degraded: true,
		Err:      err,
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}
