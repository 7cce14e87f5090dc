package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OllamaClient calls the Ollama generate API.
type OllamaClient struct {
	BaseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOllamaClient creates a client for the Ollama runtime at baseURL.
// maxTokens <= 0 leaves the response length to the runtime.
func NewOllamaClient(baseURL, model string, temperature float64, maxTokens int) *OllamaClient {
	return &OllamaClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      http.DefaultClient,
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Generate sends prompt to /api/generate and returns the full response text.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, c.maxTokens)
}

func (c *OllamaClient) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload := ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: ollamaOptions{Temperature: c.temperature, NumPredict: maxTokens},
	}
	var out ollamaGenerateResponse
	if err := postJSON(ctx, c.client, c.BaseURL+"/api/generate", "", payload, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Ping checks that the model has been pulled and answers a tiny prompt.
func (c *OllamaClient) Ping(ctx context.Context) error {
	var tags ollamaTagsResponse
	if err := getJSON(ctx, c.client, c.BaseURL+"/api/tags", "", &tags); err != nil {
		return err
	}
	found := false
	for _, m := range tags.Models {
		if m.Name == c.model || m.Name == c.model+":latest" {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s (run: ollama pull %s)", ErrModelNotFound, c.model, c.model)
	}
	if _, err := c.generate(ctx, "xin chào", 1); err != nil {
		return err
	}
	return nil
}
