// Package llm is the text-generation collaborator used for summaries, answers
// and document-level metrics extraction.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabfab/healthcheck-agent/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const DefaultMaxTokens = 1024

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// ProviderError is a failed call to an LLM provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation call. MaxTokens is the token budget for the
// answer; zero selects the client default. JSON asks for a JSON object reply.
type Request struct {
	Messages  []Message
	MaxTokens int
	JSON      bool
}

type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Options struct {
	Provider  string
	Model     string
	MaxTokens int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func (o Options) maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return DefaultMaxTokens
}

func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}
