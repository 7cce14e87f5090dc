//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/hoidap/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence-embedding model exported to ONNX, such as
// bge-m3, on text encoded with the model's own tokenizer.json. The sentence
// vector is the first token's output, which covers both pooled [1, dims] and
// token-level [1, seq, dims] outputs.
type ONNXEmbedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *ModelTokenizer
	inputs     []string
	outputRank int
	modelID    string
	dimensions int
	cache      *EmbeddingCache
	mu         sync.Mutex
}

// NewONNXEmbedder opens the model at modelPath and the tokenizer at
// tokenizerPath (tokenizer.json next to the model when empty). The output size
// comes from the model when it is fixed there; otherwise dimensions is used.
func NewONNXEmbedder(modelPath, tokenizerPath, modelID string, dimensions, maxTokens, cacheSize int) (*ONNXEmbedder, error) {
	tok, err := LoadTokenizer(TokenizerPath(tokenizerPath, modelPath), maxTokens)
	if err != nil {
		return nil, err
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize onnxruntime: %w", ErrEmbeddingModel, err)
		}
	}
	ins, outs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect %s: %w", ErrEmbeddingModel, modelPath, err)
	}
	inputs, err := inputNames(ins)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbeddingModel, modelPath, err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: %s has no outputs", ErrEmbeddingModel, modelPath)
	}
	out := outs[0]
	rank := len(out.Dimensions)
	if rank != 2 && rank != 3 {
		return nil, fmt.Errorf("%w: output %q has rank %d, want 2 or 3", ErrEmbeddingModel, out.Name, rank)
	}
	if d := out.Dimensions[rank-1]; d > 0 {
		if dimensions > 0 && int(d) != dimensions {
			return nil, fmt.Errorf("%w: model outputs %d dimensions, config expects %d", ErrEmbeddingModel, d, dimensions)
		}
		dimensions = int(d)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: output size unknown, set embedding.dimensions", ErrEmbeddingModel)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, []string{out.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create ONNX session: %w", ErrEmbeddingModel, err)
	}
	return &ONNXEmbedder{
		session:    session,
		tokenizer:  tok,
		inputs:     inputs,
		outputRank: rank,
		modelID:    modelID,
		dimensions: dimensions,
		cache:      NewEmbeddingCache(cacheSize),
	}, nil
}

// inputNames keeps the model's input order and rejects inputs the tokenizer
// cannot fill.
func inputNames(ins []ort.InputOutputInfo) ([]string, error) {
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
			names = append(names, in.Name)
		default:
			return nil, fmt.Errorf("unsupported model input %q", in.Name)
		}
	}
	return names, nil
}

// Embed returns the normalized embedding for text, using cache when available.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	toks, err := e.tokenizer.Tokenize(text)
	if err != nil {
		return nil, err
	}
	vec, err := e.run(toks)
	if err != nil {
		return nil, err
	}
	utils.NormalizeL2(vec)
	e.cache.Set(text, vec)
	return vec, nil
}

func (e *ONNXEmbedder) run(toks Tokens) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := int64(toks.Len())
	shape := ort.NewShape(1, seq)
	inputs := make([]ort.ArbitraryTensor, 0, len(e.inputs))
	defer func() {
		for _, t := range inputs {
			_ = t.Destroy()
		}
	}()
	for _, name := range e.inputs {
		data := toks.InputIDs
		switch name {
		case "attention_mask":
			data = toks.AttentionMask
		case "token_type_ids":
			data = toks.TypeIDs
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outShape := ort.NewShape(1, int64(e.dimensions))
	if e.outputRank == 3 {
		outShape = ort.NewShape(1, seq, int64(e.dimensions))
	}
	output, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run(inputs, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	vec := make([]float32, e.dimensions)
	copy(vec, output.GetData()[:e.dimensions])
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelID returns the configured model identifier.
func (e *ONNXEmbedder) ModelID() string {
	return e.modelID
}

// Close destroys the session.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
