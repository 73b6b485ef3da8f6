// Package technique queries the permanent library of brainstorming technique
// excerpts. The library is populated elsewhere; this package only reads it.
package technique

import (
	"context"
	"fmt"
)

// DefaultCollection is the Qdrant collection holding the technique chunks.
const DefaultCollection = "brainstorming_techniques"

// DefaultTable is the Postgres table holding the technique chunks.
const DefaultTable = "technique_chunks"

// Chunk is one technique excerpt ranked against a query vector.
type Chunk struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	ChunkID    string  `json:"chunk_id"`
	Similarity float64 `json:"similarity"`
}

// Library returns the technique chunks closest to a query vector.
type Library interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Chunk, error)
}

// Empty is a Library with no techniques.
type Empty struct{}

func (Empty) Query(context.Context, []float32, int) ([]Chunk, error) { return nil, nil }

// Truncate shortens content to at most n runes.
func Truncate(content string, n int) string {
	r := []rune(content)
	if len(r) <= n {
		return content
	}
	return string(r[:n])
}

func wrap(op string, err error) error {
	return fmt.Errorf("technique %s: %w", op, err)
}
