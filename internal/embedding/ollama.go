package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/hoidap/pkg/utils"
)

// OllamaEmbedder calls an Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	batchSize  int
	cache      *EmbeddingCache
	client     *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewOllamaEmbedder creates an embedder for model served at baseURL and probes it
// with one short text, so an unreachable server or a model that has not been
// pulled fails here rather than halfway through a build. When dimensions is
// positive the probe vector must have that length.
func NewOllamaEmbedder(ctx context.Context, baseURL, model string, dimensions, batchSize, cacheSize int) (*OllamaEmbedder, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	e := &OllamaEmbedder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		batchSize: batchSize,
		cache:     NewEmbeddingCache(cacheSize),
		client:    &http.Client{},
	}
	vecs, err := e.request(ctx, []string{"xin chào"})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbeddingModel, model, err)
	}
	got := len(vecs[0])
	if dimensions > 0 && got != dimensions {
		return nil, fmt.Errorf("%w: %s returns %d dimensions, config expects %d", ErrEmbeddingModel, model, got, dimensions)
	}
	e.dimensions = got
	return e, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most batchSize inputs.
// Cached texts are not sent again.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if v, ok := e.cache.Get(text); ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}

	for startIdx := 0; startIdx < len(missing); startIdx += e.batchSize {
		end := startIdx + e.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := make([]string, 0, end-startIdx)
		for _, i := range missing[startIdx:end] {
			batch = append(batch, texts[i])
		}
		vecs, err := e.request(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range missing[startIdx:end] {
			v := vecs[j]
			if len(v) != e.dimensions {
				return nil, fmt.Errorf("embedding size mismatch: got %d, expected %d", len(v), e.dimensions)
			}
			out[i] = v
			e.cache.Set(texts[i], v)
		}
	}
	return out, nil
}

func (e *OllamaEmbedder) request(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("ollama: %s", parsed.Error)
	}
	if len(parsed.Embeddings) != len(input) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(input), len(parsed.Embeddings))
	}
	for _, v := range parsed.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty embedding returned")
		}
		utils.NormalizeL2(v)
	}
	return parsed.Embeddings, nil
}

// Dimensions returns the embedding dimension reported by the model.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelID returns the Ollama model name.
func (e *OllamaEmbedder) ModelID() string {
	return e.model
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OllamaEmbedder) Close() error {
	return nil
}
