package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router sends each request to the default provider and then down the
// fallback chain until one answers.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	primary   string
	fallbacks []string
	logger    *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{providers: make(map[string]Provider), logger: logger}
}

// Register adds a provider. The first one registered becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.primary == "" {
		r.primary = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the provider tried first.
func (r *Router) SetDefault(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary = id
}

// SetFallbacks sets the providers tried, in order, after the default fails.
func (r *Router) SetFallbacks(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append([]string(nil), ids...)
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// chain lists the providers to try: the default, then each known fallback once.
func (r *Router) chain() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, 1+len(r.fallbacks))
	var out []Provider
	for _, id := range append([]string{r.primary}, r.fallbacks...) {
		p, ok := r.providers[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, p)
	}
	return out
}

// Chat returns the first successful reply along the chain. A cancelled
// context stops the walk.
func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	chain := r.chain()
	if len(chain) == 0 {
		return nil, errors.New("no provider registered")
	}

	var errs []error
	for _, p := range chain {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.ID(), err))
		if ctx.Err() != nil {
			break
		}
		r.logger.Warn("provider failed", zap.String("provider", p.ID()), zap.Error(err))
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}
