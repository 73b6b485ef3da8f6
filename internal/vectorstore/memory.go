package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
)

// Memory is an in-process Store doing exact cosine search. It backs local runs
// without a Qdrant instance and the package tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dimension uint64
	points    map[uint64]Point
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) EnsureCollection(_ context.Context, name string, dimension uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = &memCollection{dimension: dimension, points: make(map[uint64]Point)}
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, collection string, points ...Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("upsert %s: %w", collection, ErrCollectionNotFound)
	}
	for _, p := range points {
		if c.dimension > 0 && uint64(len(p.Vector)) != c.dimension {
			return fmt.Errorf("upsert %s: vector dimension %d, collection expects %d", collection, len(p.Vector), c.dimension)
		}
		c.points[p.ID] = p
	}
	return nil
}

func (m *Memory) Search(_ context.Context, collection string, vector []float32, topK uint64) ([]*SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("search %s: %w", collection, ErrCollectionNotFound)
	}

	results := make([]*SearchResult, 0, len(c.points))
	for _, p := range c.points {
		payload := make(map[string]string, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		results = append(results, &SearchResult{
			ID:      strconv.FormatUint(p.ID, 10),
			Score:   float32(cosine(vector, p.Vector)),
			Payload: payload,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if uint64(len(results)) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *Memory) Count(_ context.Context, collection string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return 0, fmt.Errorf("count %s: %w", collection, ErrCollectionNotFound)
	}
	return uint64(len(c.points)), nil
}

func (m *Memory) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		return fmt.Errorf("delete collection %s: %w", name, ErrCollectionNotFound)
	}
	delete(m.collections, name)
	return nil
}

// Collections lists the names of the live collections.
func (m *Memory) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListCollections returns the same names as Collections.
func (m *Memory) ListCollections(_ context.Context) ([]string, error) {
	return m.Collections(), nil
}

func (m *Memory) Close() error { return nil }

// cosine returns the cosine similarity of a and b, or 0 when either is a zero vector
// or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
