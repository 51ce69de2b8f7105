package embedding

import (
	"math"
)

// CosineSimilarity returns the cosine of the angle between a and b, clamped to [-1, 1].
// It returns 0 when either vector has zero norm or when the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

// CosineSimilarities scores query against every vector of corpus.
// The result has one score per corpus row, in corpus order.
func CosineSimilarities(query []float32, corpus [][]float32) []float64 {
	scores := make([]float64, len(corpus))
	for i, row := range corpus {
		scores[i] = CosineSimilarity(query, row)
	}
	return scores
}

// L2Normalize scales v in place to unit length. Zero vectors are left untouched.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
