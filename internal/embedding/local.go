package embedding

import (
	"context"
	"fmt"
)

// LocalProvider calls an Ollama-style /api/embeddings endpoint, which takes
// one prompt per request.
type LocalProvider struct {
	*service
}

// NewLocalProvider creates a provider for cfg.
func NewLocalProvider(cfg Config) *LocalProvider {
	return &LocalProvider{service: newService(cfg, "http://localhost:11434")}
}

type localRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed issues one request per text, in order, and stops at the first failure.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		var out localResponse
		if err := p.post(ctx, "/api/embeddings", localRequest{Model: p.model, Prompt: text}, &out); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		if len(out.Embedding) == 0 {
			return nil, fmt.Errorf("embedding: empty vector for model %s", p.model)
		}
		vectors = append(vectors, out.Embedding)
	}
	p.observe(vectors[0])
	return vectors, nil
}
