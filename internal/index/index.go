// Package index implements the per-session ephemeral similarity index.
//
// Each Ephemeral owns exactly one vector collection, named by the session's
// index handle. Instances share a single vectorstore.Store; the collection name
// is the only isolation boundary between them.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/nidhogg/brainstorm/internal/embedding"
	"github.com/nidhogg/brainstorm/internal/vectorstore"
	"go.uber.org/zap"
)

var (
	// ErrEmbedding wraps any failure of the embedding service. It is not retried.
	ErrEmbedding = errors.New("index: embedding failed")
	// ErrTornDown is returned by every operation after Teardown.
	ErrTornDown = errors.New("index: torn down")
)

// RecordType is the payload type tag of association records.
const RecordType = "association"

// Record is one association stored in the index.
type Record struct {
	Text      string
	Vector    []float32
	Ordinal   int
	SessionID string
}

// Keyword is an association ranked against a query.
type Keyword struct {
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Ordinal    int     `json:"ordinal"`
}

// Ephemeral is the similarity index of a single session.
type Ephemeral struct {
	store     vectorstore.Store
	embedder  embedding.Provider
	sessionID string
	handle    string
	logger    *zap.Logger

	mu   sync.Mutex
	next int
	torn bool
}

// Open creates the backing collection for the session and returns its index.
// A dimension <= 0 falls back to the embedder's reported dimension.
func Open(ctx context.Context, store vectorstore.Store, embedder embedding.Provider, sessionID, handle string, dimension int, logger *zap.Logger) (*Ephemeral, error) {
	if dimension <= 0 {
		dimension = embedder.Dimension()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("open index %s: unknown embedding dimension", handle)
	}
	if err := store.EnsureCollection(ctx, handle, uint64(dimension)); err != nil {
		return nil, fmt.Errorf("open index %s: %w", handle, err)
	}
	logger.Info("ephemeral index created",
		zap.String("session", sessionID),
		zap.String("collection", handle),
		zap.Int("dimension", dimension))
	return &Ephemeral{
		store:     store,
		embedder:  embedder,
		sessionID: sessionID,
		handle:    handle,
		logger:    logger,
	}, nil
}

// Handle returns the name of the backing collection.
func (e *Ephemeral) Handle() string { return e.handle }

// SessionID returns the owning session's identifier.
func (e *Ephemeral) SessionID() string { return e.sessionID }

// Embed returns the embedding vector of text.
func (e *Ephemeral) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.embed(ctx, text)
}

func (e *Ephemeral) embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: no vector returned", ErrEmbedding)
	}
	return vectors[0], nil
}

// AddItems embeds and stores each text in order. Ordinals continue across calls.
// A failure part way through is reported, but items stored before it stay stored.
func (e *Ephemeral) AddItems(ctx context.Context, texts []string) error {
	if err := e.check(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, text := range texts {
		vec, err := e.embed(ctx, text)
		if err != nil {
			return fmt.Errorf("add item %d: %w", e.next, err)
		}
		rec := Record{Text: text, Vector: vec, Ordinal: e.next, SessionID: e.sessionID}
		if err := e.store.Upsert(ctx, e.handle, toPoint(rec)); err != nil {
			return fmt.Errorf("add item %d: %w", e.next, err)
		}
		e.next++
	}
	e.logger.Debug("associations indexed",
		zap.String("session", e.sessionID), zap.Int("added", len(texts)), zap.Int("total", e.next))
	return nil
}

// Query ranks stored associations against text, most similar first.
func (e *Ephemeral) Query(ctx context.Context, text string, topK int) ([]Keyword, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	results, err := e.store.Search(ctx, e.handle, vec, uint64(topK))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", e.handle, err)
	}

	keywords := make([]Keyword, 0, len(results))
	for _, r := range results {
		ordinal, _ := strconv.Atoi(r.Payload["ordinal"])
		keywords = append(keywords, Keyword{
			Text:       r.Payload["text"],
			Similarity: vectorstore.Similarity(r.Distance()),
			Ordinal:    ordinal,
		})
	}
	return keywords, nil
}

// Count returns the number of stored associations.
func (e *Ephemeral) Count(ctx context.Context) (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	n, err := e.store.Count(ctx, e.handle)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", e.handle, err)
	}
	return int(n), nil
}

// Teardown deletes the backing collection. The index is unusable afterwards,
// even when the delete itself failed.
func (e *Ephemeral) Teardown(ctx context.Context) error {
	e.mu.Lock()
	if e.torn {
		e.mu.Unlock()
		return ErrTornDown
	}
	e.torn = true
	e.mu.Unlock()

	if err := e.store.DeleteCollection(ctx, e.handle); err != nil {
		return fmt.Errorf("teardown %s: %w", e.handle, err)
	}
	e.logger.Info("ephemeral index deleted",
		zap.String("session", e.sessionID), zap.String("collection", e.handle))
	return nil
}

func (e *Ephemeral) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.torn {
		return ErrTornDown
	}
	return nil
}

func toPoint(r Record) vectorstore.Point {
	return vectorstore.Point{
		ID:     uint64(r.Ordinal),
		Vector: r.Vector,
		Payload: map[string]string{
			"type":       RecordType,
			"ordinal":    strconv.Itoa(r.Ordinal),
			"session_id": r.SessionID,
			"text":       r.Text,
		},
	}
}
