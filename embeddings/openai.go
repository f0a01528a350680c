package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(opts Options) Embedder {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return inBatches(texts, func(batch []string) ([][]float32, error) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: batch,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai embeddings: %w", err)
		}

		// Results carry their input index and are not guaranteed to be ordered.
		results := make([][]float32, len(batch))
		for _, datum := range resp.Data {
			if datum.Index < 0 || datum.Index >= len(batch) {
				return nil, fmt.Errorf("openai embedding index %d out of range", datum.Index)
			}
			if err := checkDimension("openai", e.dimension, datum.Embedding); err != nil {
				return nil, err
			}
			results[datum.Index] = datum.Embedding
		}
		for i, vec := range results {
			if vec == nil {
				return nil, fmt.Errorf("openai embedding missing for input %d", i)
			}
		}
		return results, nil
	})
}
