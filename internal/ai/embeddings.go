package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder generates transcript embeddings via the OpenAI embeddings
// API. It satisfies the insights.Embedder contract: text in, vector out,
// errors surfaced for the caller to degrade on.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// OpenAIEmbedderConfig holds configuration for the embedder.
type OpenAIEmbedderConfig struct {
	APIKey string
	Model  string // defaults to text-embedding-3-small
}

func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig) *OpenAIEmbedder {
	model := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.SmallEmbedding3
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
	}
}

// Embed returns the embedding vector for text. The vector length is fixed by
// the model, so all calls embedded with the same configuration are
// comparable.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no data")
	}

	vec := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float64(v)
	}
	return vec, nil
}
