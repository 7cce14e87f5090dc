// Package llm talks to the language model runtime that writes the answers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/hoidap/internal/config"
)

var (
	// ErrUnavailable means the runtime could not be reached or failed to answer.
	ErrUnavailable = errors.New("language model runtime unavailable")
	// ErrModelNotFound means the runtime is up but the model is not installed.
	ErrModelNotFound = errors.New("language model not found")
)

// Client generates text from a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Ping checks that the runtime is reachable and the model is usable.
	Ping(ctx context.Context) error
	Model() string
}

// New creates the client selected by cfg.Provider.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case config.LLMOllama, "":
		return NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.TemperatureOrDefault(), cfg.MaxTokens), nil
	case config.LLMOpenAI:
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.TemperatureOrDefault(), cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: ollama, openai)", cfg.Provider)
	}
}

func postJSON(ctx context.Context, hc *http.Client, url, apiKey string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
	return do(hc, req, out)
}

func getJSON(ctx context.Context, hc *http.Client, url, apiKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
	return do(hc, req, out)
}

func do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s", ErrModelNotFound, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: bad status %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrUnavailable, err)
	}
	return nil
}
