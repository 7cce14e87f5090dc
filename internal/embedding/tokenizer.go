package embedding

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// TokenizerFile is the Hugging Face tokenizer file looked up next to an ONNX
// model when no explicit path is configured.
const TokenizerFile = "tokenizer.json"

// TokenizerPath returns configured when set and otherwise tokenizer.json in
// the model's directory.
func TokenizerPath(configured, modelPath string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(filepath.Dir(modelPath), TokenizerFile)
}

// Tokens is one encoded text in the int64 layout ONNX models take.
type Tokens struct {
	InputIDs      []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Len returns the number of tokens.
func (t Tokens) Len() int { return len(t.InputIDs) }

// ModelTokenizer encodes text with the model's own vocabulary, loaded from its
// tokenizer.json, and truncates to maxTokens keeping the closing special token.
type ModelTokenizer struct {
	encode    func(text string) (*tokenizer.Encoding, error)
	maxTokens int
}

// LoadTokenizer reads a tokenizer.json file.
func LoadTokenizer(path string, maxTokens int) (*ModelTokenizer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: tokenizer: %w", ErrEmbeddingModel, err)
	}
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load tokenizer %s: %w", ErrEmbeddingModel, path, err)
	}
	return newModelTokenizer(func(text string) (*tokenizer.Encoding, error) {
		return tk.EncodeSingle(text, true)
	}, maxTokens), nil
}

func newModelTokenizer(encode func(string) (*tokenizer.Encoding, error), maxTokens int) *ModelTokenizer {
	if maxTokens < 2 {
		maxTokens = 256
	}
	return &ModelTokenizer{encode: encode, maxTokens: maxTokens}
}

// Tokenize encodes text with special tokens added.
func (t *ModelTokenizer) Tokenize(text string) (Tokens, error) {
	enc, err := t.encode(text)
	if err != nil {
		return Tokens{}, fmt.Errorf("tokenize: %w", err)
	}
	n := len(enc.Ids)
	if n == 0 {
		return Tokens{}, fmt.Errorf("tokenize: no tokens")
	}
	keep := min(n, t.maxTokens)
	out := Tokens{
		InputIDs:      make([]int64, keep),
		AttentionMask: make([]int64, keep),
		TypeIDs:       make([]int64, keep),
	}
	for i := 0; i < keep; i++ {
		src := i
		// The last slot keeps the end-of-sequence token when truncating.
		if i == keep-1 {
			src = n - 1
		}
		out.InputIDs[i] = int64(enc.Ids[src])
		out.AttentionMask[i] = 1
		if src < len(enc.AttentionMask) {
			out.AttentionMask[i] = int64(enc.AttentionMask[src])
		}
		if src < len(enc.TypeIds) {
			out.TypeIDs[i] = int64(enc.TypeIds[src])
		}
	}
	return out, nil
}
