package brainstorm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/brainstorm/internal/generation"
	"github.com/nidhogg/brainstorm/internal/prompts"
	"github.com/nidhogg/brainstorm/internal/registry"
	"github.com/nidhogg/brainstorm/internal/session"
	"github.com/nidhogg/brainstorm/internal/technique"
	"github.com/nidhogg/brainstorm/internal/vectorstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDim = 16

// hashEmbedder turns text into a deterministic bag-of-runes vector.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDim)
		for _, r := range t {
			v[int(r)%testDim]++
		}
		v[0] += 0.5
		out[i] = v
	}
	return out, nil
}

func (hashEmbedder) Dimension() int { return testDim }

const (
	warmupReply = "1. Who is the app for?\n2. What problem does it solve first?"
	ideasReply  = `---
Idea Title: Sleep coach
Description: Track bedtime with one tap.
Applied Technique: SCAMPER
---
Idea Title: Study timer
Description: Pomodoro timer that shares streaks with friends.
Applied Technique: Mind Mapping
---`
	swotReply = `Strengths:
- Cheap to build
Weaknesses:
- Crowded market
Opportunities:
- Students want focus tools
Threats:
- Platform rules change`
)

// scriptedGenerator answers by prompt kind, recognised by the token limit.
type scriptedGenerator struct {
	mu      sync.Mutex
	fail    map[int]error
	replies map[int]string
	prompts map[int][]string
	// after runs once each call has been recorded.
	after func(maxTokens int)
}

func newGenerator() *scriptedGenerator {
	replies := map[int]string{
		warmupOpts.MaxTokens: warmupReply,
		ideasOpts.MaxTokens:  ideasReply,
		swotOpts.MaxTokens:   swotReply,
	}
	return &scriptedGenerator{fail: map[int]error{}, replies: replies, prompts: map[int][]string{}}
}

func (g *scriptedGenerator) Complete(_ context.Context, prompt string, opts generation.Options) (string, error) {
	g.mu.Lock()
	g.prompts[opts.MaxTokens] = append(g.prompts[opts.MaxTokens], prompt)
	err, reply, after := g.fail[opts.MaxTokens], g.replies[opts.MaxTokens], g.after
	g.mu.Unlock()

	if after != nil {
		after(opts.MaxTokens)
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (g *scriptedGenerator) calls(maxTokens int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts[maxTokens]...)
}

var errExhausted = &generation.ExhaustedError{Attempts: 3, Err: errors.New("provider down")}

// flakyStore fails selected operations of an in-memory store.
type flakyStore struct {
	*vectorstore.Memory
	failCreate bool
	failDelete bool
}

func (s *flakyStore) EnsureCollection(ctx context.Context, name string, dim uint64) error {
	if s.failCreate {
		return errors.New("qdrant unavailable")
	}
	return s.Memory.EnsureCollection(ctx, name, dim)
}

func (s *flakyStore) DeleteCollection(ctx context.Context, name string) error {
	if s.failDelete {
		return errors.New("qdrant unavailable")
	}
	return s.Memory.DeleteCollection(ctx, name)
}

type fixture struct {
	engine   *Engine
	sessions *session.Store
	vectors  *flakyStore
	registry *registry.Memory
	gen      *scriptedGenerator
	library  *technique.QdrantLibrary
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	vectors := &flakyStore{Memory: vectorstore.NewMemory()}
	require.NoError(t, vectors.Memory.EnsureCollection(ctx, technique.DefaultCollection, testDim))
	techVec, _ := hashEmbedder{}.Embed(ctx, []string{"mobile app idea"})
	require.NoError(t, vectors.Memory.Upsert(ctx, technique.DefaultCollection, vectorstore.Point{
		ID:      1,
		Vector:  techVec[0],
		Payload: map[string]string{"title": "SCAMPER", "chunk_id": "scamper-1", "content": "Substitute, combine, adapt, modify."},
	}))

	set, err := prompts.Load("")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.AssociationDeadline = 300 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		sessions: session.NewStore(session.Config{MaxAssociations: cfg.MaxAssociations}, zap.NewNop()),
		vectors:  vectors,
		registry: registry.NewMemory(),
		gen:      newGenerator(),
	}
	f.library = technique.NewQdrantLibrary(vectors, "")
	f.engine = NewEngine(Deps{
		Sessions:  f.sessions,
		Vectors:   vectors,
		Embedder:  hashEmbedder{},
		Generator: f.gen,
		Library:   f.library,
		Registry:  f.registry,
		Prompts:   set,
	}, cfg, zap.NewNop())
	return f
}

// ephemeral lists the live session collections.
func (f *fixture) ephemeral() []string {
	var out []string
	for _, c := range f.vectors.Collections() {
		if c != technique.DefaultCollection {
			out = append(out, c)
		}
	}
	return out
}

func associations(n int) []string {
	words := []string{
		"alarm", "sleep", "habit", "streak", "coffee", "commute", "music", "budget",
		"notes", "focus", "calendar", "friends", "photos", "walking", "water", "reading",
		"weather", "recipes", "podcast", "timer",
	}
	return words[:n]
}
