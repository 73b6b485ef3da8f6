// Package vectorstore holds named vector collections behind one shared handle.
// Collection names are the isolation boundary between callers.
package vectorstore

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned for operations on a collection that does not exist.
var ErrCollectionNotFound = errors.New("vectorstore: collection not found")

// Point is a vector with its string payload. IDs are unique per collection.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]string
}

// SearchResult holds a single vector search hit. Score is the cosine similarity
// in [-1, 1]; Distance() converts it to cosine distance.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Distance returns the cosine distance (1 - similarity) of the hit.
func (r *SearchResult) Distance() float64 {
	return 1 - float64(r.Score)
}

// Similarity converts a cosine distance into a score clamped to [0, 1].
func Similarity(distance float64) float64 {
	s := 1 - distance
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Store is the set of collection operations the retrieval pipeline needs.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection string, points ...Point) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64) ([]*SearchResult, error)
	Count(ctx context.Context, collection string) (uint64, error)
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	Close() error
}
