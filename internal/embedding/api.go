package embedding

import (
	"context"
	"fmt"
)

// APIProvider calls an OpenAI-compatible /embeddings endpoint with the whole batch.
type APIProvider struct {
	*service
}

// NewAPIProvider creates a provider for cfg.
func NewAPIProvider(cfg Config) *APIProvider {
	return &APIProvider{service: newService(cfg, "https://api.openai.com/v1")}
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed returns one vector per text, placed by the index the API reports.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out apiResponse
	if err := p.post(ctx, "/embeddings", apiRequest{Model: p.model, Input: texts}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(out.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: index %d out of range for %d inputs", d.Index, len(texts))
		}
		if vectors[d.Index] != nil {
			return nil, fmt.Errorf("embedding: duplicate index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	p.observe(vectors[0])
	return vectors, nil
}
