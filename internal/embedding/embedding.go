// Package embedding turns text into vectors through an external service.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nidhogg/brainstorm/internal/httpjson"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string        `json:"provider"` // "api" or "local"
	Endpoint  string        `json:"endpoint"`
	Model     string        `json:"model"`
	APIKey    string        `json:"api_key"`
	Dimension int           `json:"dimension"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// New returns the provider selected by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "api":
		return NewAPIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

const defaultTimeout = 30 * time.Second

// service is the HTTP plumbing shared by both providers.
type service struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client

	configured int
	observed   atomic.Int64
}

func newService(cfg Config, defaultEndpoint string) *service {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &service{
		endpoint:   endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		client:     httpjson.NewClient(cfg.Timeout, defaultTimeout),
		configured: cfg.Dimension,
	}
}

func (s *service) post(ctx context.Context, path string, in, out any) error {
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["Authorization"] = "Bearer " + s.apiKey
	}
	if err := httpjson.Post(ctx, s.client, s.endpoint+path, headers, in, out); err != nil {
		return fmt.Errorf("embedding: %s: %w", path, err)
	}
	return nil
}

// observe records the width of the first vector the service returns.
func (s *service) observe(vec []float32) {
	if len(vec) > 0 {
		s.observed.CompareAndSwap(0, int64(len(vec)))
	}
}

// Dimension returns the observed vector width, or the configured one before
// the first call.
func (s *service) Dimension() int {
	if d := s.observed.Load(); d > 0 {
		return int(d)
	}
	return s.configured
}
