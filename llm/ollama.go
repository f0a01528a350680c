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
	"time"
)

const providerOllama = "ollama"

type ollamaClient struct {
	host   string
	opts   Options
	client *http.Client
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	return &ollamaClient{
		host: host,
		opts: opts,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := ollamaChatRequest{
		Model:    c.opts.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  map[string]any{"num_predict": c.opts.maxTokens(req.MaxTokens)},
	}
	if req.JSON {
		payload.Format = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Provider: providerOllama, Err: fmt.Errorf("call chat API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return "", fmt.Errorf("read ollama chat error body: %w", readErr)
		}
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = "returned status " + resp.Status
		}
		return "", &ProviderError{Provider: providerOllama, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	if parsed.Error != "" {
		return "", &ProviderError{Provider: providerOllama, StatusCode: resp.StatusCode, Err: errors.New(parsed.Error)}
	}

	content := strings.TrimSpace(parsed.Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
