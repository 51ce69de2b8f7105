// Package search ranks stored segments against a query by embedding similarity.
//
// Ranking is a full scan over every embedded segment, which is adequate for the
// corpus of a single learner. A larger corpus should swap the scan for an
// approximate nearest-neighbor index behind the same Service methods.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/at-ishikawa/kikitori/internal/content"
	"github.com/at-ishikawa/kikitori/internal/embedding"
)

const (
	DefaultLimit     = 5
	DefaultCacheSize = 256
)

// ErrDegradedQuery is returned when the query could not be embedded and the query asked
// not to be ranked against a zero vector.
var ErrDegradedQuery = errors.New("query embedding is degraded")

// SegmentSource provides the embedded segments to rank.
type SegmentSource interface {
	EmbeddedSegments(ctx context.Context, level content.Level) ([]content.SegmentCandidate, error)
}

var _ SegmentSource = (*content.Store)(nil)

// Query is a similarity search request.
type Query struct {
	Text      string
	Limit     int
	JLPTLevel content.Level
	// RejectDegraded makes a query whose embedding failed return ErrDegradedQuery
	// instead of ranking every segment at similarity 0.
	RejectDegraded bool
}

// Match is one ranked segment.
type Match struct {
	SegmentID    int64
	TranscriptID int64
	Text         string
	SourceURL    string
	Title        string
	JLPTLevel    content.Level
	Similarity   float64
}

type Service struct {
	source       SegmentSource
	generator    *embedding.Generator
	defaultLimit int
	cacheSize    int
	cache        *lru.Cache[string, []float32]
}

type Option func(*Service)

// WithDefaultLimit sets the limit used when a query does not set one.
func WithDefaultLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.defaultLimit = limit
		}
	}
}

// WithCacheSize sets how many query embeddings are kept. Zero disables the cache.
func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.cacheSize = size
		}
	}
}

func NewService(source SegmentSource, generator *embedding.Generator, opts ...Option) (*Service, error) {
	s := &Service{
		source:       source,
		generator:    generator,
		defaultLimit: DefaultLimit,
		cacheSize:    DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize > 0 {
		cache, err := lru.New[string, []float32](s.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("lru.New: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// SearchSimilarContent embeds the query text and returns the closest segments,
// most similar first.
func (s *Service) SearchSimilarContent(ctx context.Context, query Query) ([]Match, error) {
	vector, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchByVector(ctx, vector, query.Limit, query.JLPTLevel)
}

// SearchByVector ranks segments against a precomputed query vector.
func (s *Service) SearchByVector(ctx context.Context, vector []float32, limit int, level content.Level) ([]Match, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	candidates, err := s.source.EmbeddedSegments(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("source.EmbeddedSegments: %w", err)
	}

	matches := make([]Match, 0, len(candidates))
	for _, candidate := range candidates {
		segmentVector, err := embedding.DecodeVector(candidate.Embedding)
		if err != nil {
			slog.Default().Debug("skip segment with undecodable embedding",
				"segment_id", candidate.SegmentID,
				"error", err)
			continue
		}
		if len(segmentVector) != len(vector) {
			slog.Default().Debug("skip segment with mismatched embedding dimension",
				"segment_id", candidate.SegmentID,
				"dimension", len(segmentVector),
				"query_dimension", len(vector))
			continue
		}
		matches = append(matches, Match{
			SegmentID:    candidate.SegmentID,
			TranscriptID: candidate.TranscriptID,
			Text:         candidate.Text,
			SourceURL:    candidate.SourceURL,
			Title:        candidate.Title,
			JLPTLevel:    candidate.JLPTLevel,
			Similarity:   embedding.CosineSimilarity(vector, segmentVector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Service) queryVector(ctx context.Context, query Query) ([]float32, error) {
	key := s.generator.InputText(query.Text)
	if s.cache != nil {
		if vector, ok := s.cache.Get(key); ok {
			return vector, nil
		}
	}

	result := s.generator.Embed(ctx, query.Text)
	if result.Degraded {
		if query.RejectDegraded {
			return nil, fmt.Errorf("%w: %v", ErrDegradedQuery, result.Err)
		}
		slog.Default().Warn("searching with a degraded query embedding",
			"query", query.Text,
			"error", result.Err)
		return result.Vector, nil
	}

	if s.cache != nil {
		s.cache.Add(key, result.Vector)
	}
	return result.Vector, nil
}
