package onnx

import (
	"github.com/at-ishikawa/kikitori/internal/embedding"
)

// batch is a right-padded [size, seqLen] token batch flattened row-major.
type batch struct {
	size          int
	seqLen        int
	inputIDs      []int64
	attentionMask []int64
	tokenTypeIDs  []int64
}

func newBatch(ids, masks [][]int, maxLen int) batch {
	seqLen := 0
	for _, row := range ids {
		seqLen = max(seqLen, min(len(row), maxLen))
	}
	// ONNX Runtime rejects zero-sized dimensions
	seqLen = max(seqLen, 1)

	b := batch{
		size:          len(ids),
		seqLen:        seqLen,
		inputIDs:      make([]int64, len(ids)*seqLen),
		attentionMask: make([]int64, len(ids)*seqLen),
		tokenTypeIDs:  make([]int64, len(ids)*seqLen),
	}
	for i, row := range ids {
		offset := i * seqLen
		for j := 0; j < seqLen && j < len(row); j++ {
			b.inputIDs[offset+j] = int64(row[j])
			if j < len(masks[i]) {
				b.attentionMask[offset+j] = int64(masks[i][j])
			}
		}
	}
	return b
}

// meanPool averages hidden states over the unmasked tokens of each row and
// L2-normalizes the result.
func meanPool(hidden []float32, mask []int64, size, seqLen, hiddenDim int) [][]float32 {
	vectors := make([][]float32, size)
	for i := 0; i < size; i++ {
		v := make([]float32, hiddenDim)
		var count float32
		for j := 0; j < seqLen; j++ {
			if mask[i*seqLen+j] == 0 {
				continue
			}
			count++
			offset := (i*seqLen + j) * hiddenDim
			for k := 0; k < hiddenDim; k++ {
				v[k] += hidden[offset+k]
			}
		}
		if count > 0 {
			for k := range v {
				v[k] /= count
			}
		}
		vectors[i] = embedding.L2Normalize(v)
	}
	return vectors
}
