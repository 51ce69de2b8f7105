// Package onnx runs a sentence-transformer exported to ONNX (for example
// paraphrase-multilingual-MiniLM-L12-v2) locally through ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/at-ishikawa/kikitori/internal/embedding"
)

const (
	DefaultDimension = 384

	modelFileName     = "model.onnx"
	tokenizerFileName = "tokenizer.json"
	maxSequenceLength = 512
)

var (
	inputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames = []string{"last_hidden_state"}
)

type Config struct {
	// ModelDirectory contains model.onnx and tokenizer.json.
	ModelDirectory string
	// SharedLibraryPath points at libonnxruntime; empty uses the platform default.
	SharedLibraryPath string
	Dimension         int
}

type Model struct {
	name      string
	tokenizer *tokenizer.Tokenizer
	session   *ort.DynamicAdvancedSession
	dimension int
}

var _ embedding.Model = (*Model)(nil)

// NewModel loads the tokenizer and initializes an ONNX Runtime session.
// Only one Model should exist per process because the runtime environment is global.
func NewModel(cfg Config) (*Model, error) {
	tok, err := pretrained.FromFile(filepath.Join(cfg.ModelDirectory, tokenizerFileName))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize ONNX environment: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer func() { _ = opts.Destroy() }()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(0); err != nil {
		slog.Default().Warn("failed to set ONNX thread count", "error", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(cfg.ModelDirectory, modelFileName),
		inputNames,
		outputNames,
		opts,
	)
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("create session: %w", err)
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Model{
		name:      "onnx/" + filepath.Base(cfg.ModelDirectory),
		tokenizer: tok,
		session:   session,
		dimension: dimension,
	}, nil
}

func (m *Model) Name() string {
	return m.name
}

func (m *Model) Dimension() int {
	return m.dimension
}

func (m *Model) Close() error {
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
	}
	return ort.DestroyEnvironment()
}

// Encode tokenizes texts as one padded batch and mean-pools the last hidden state.
func (m *Model) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := make([]tokenizer.EncodeInput, len(texts))
	for i, t := range texts {
		inputs[i] = tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(t))
	}
	encodings, err := m.tokenizer.EncodeBatch(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("tokenization failed: %w", err)
	}

	ids := make([][]int, len(encodings))
	masks := make([][]int, len(encodings))
	for i, enc := range encodings {
		ids[i] = enc.GetIds()
		masks[i] = enc.GetAttentionMask()
	}
	batch := newBatch(ids, masks, maxSequenceLength)

	shape := ort.NewShape(int64(batch.size), int64(batch.seqLen))
	inputIDs, err := ort.NewTensor(shape, batch.inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer func() { _ = inputIDs.Destroy() }()
	attentionMask, err := ort.NewTensor(shape, batch.attentionMask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer func() { _ = attentionMask.Destroy() }()
	tokenTypeIDs, err := ort.NewTensor(shape, batch.tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer func() { _ = tokenTypeIDs.Destroy() }()

	outputs := make([]ort.Value, 1)
	if err := m.session.Run([]ort.Value{inputIDs, attentionMask, tokenTypeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() { _ = outputs[0].Destroy() }()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output tensor is not float32")
	}
	outShape := hidden.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", outShape)
	}
	hiddenDim := int(outShape[2])
	if hiddenDim != m.dimension {
		return nil, fmt.Errorf("model hidden size %d does not match configured dimension %d", hiddenDim, m.dimension)
	}

	return meanPool(hidden.GetData(), batch.attentionMask, batch.size, batch.seqLen, hiddenDim), nil
}
