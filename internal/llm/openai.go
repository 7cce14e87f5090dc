package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIClient calls an OpenAI-compatible chat completions API
// (llama.cpp server, vLLM, LM Studio and similar).
type OpenAIClient struct {
	BaseURL     string
	APIKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(baseURL, apiKey, model string, temperature float64, maxTokens int) *OpenAIClient {
	return &OpenAIClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      http.DefaultClient,
	}
}

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the request payload for chat completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatChoice represents a single choice in the chat response.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatResponse represents the response from the chat completions API.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Choices []ChatChoice `json:"choices"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Generate sends prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, prompt, c.maxTokens)
}

func (c *OpenAIClient) chat(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload := ChatRequest{
		Model:       c.model,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	}
	var out ChatResponse
	if err := postJSON(ctx, c.client, c.BaseURL+"/v1/chat/completions", c.APIKey, payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}
	return out.Choices[0].Message.Content, nil
}

// Ping lists the served models and runs a one-token completion.
// Servers that serve a single model under another name are accepted when the
// list has exactly one entry.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	var models modelsResponse
	if err := getJSON(ctx, c.client, c.BaseURL+"/v1/models", c.APIKey, &models); err != nil {
		return err
	}
	found := len(models.Data) == 1
	for _, m := range models.Data {
		if m.ID == c.model {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrModelNotFound, c.model)
	}
	_, err := c.chat(ctx, "xin chào", 1)
	return err
}
