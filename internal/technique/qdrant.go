package technique

import (
	"context"

	"github.com/nidhogg/brainstorm/internal/vectorstore"
)

// QdrantLibrary reads techniques from a vector collection.
type QdrantLibrary struct {
	store      vectorstore.Store
	collection string
}

// NewQdrantLibrary returns a library over the named collection of store.
func NewQdrantLibrary(store vectorstore.Store, collection string) *QdrantLibrary {
	if collection == "" {
		collection = DefaultCollection
	}
	return &QdrantLibrary{store: store, collection: collection}
}

// Query returns up to topK chunks, most similar first.
func (l *QdrantLibrary) Query(ctx context.Context, vector []float32, topK int) ([]Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	hits, err := l.store.Search(ctx, l.collection, vector, uint64(topK))
	if err != nil {
		return nil, wrap("query", err)
	}
	chunks := make([]Chunk, 0, len(hits))
	for _, h := range hits {
		id := h.Payload["chunk_id"]
		if id == "" {
			id = h.ID
		}
		chunks = append(chunks, Chunk{
			Title:      h.Payload["title"],
			Content:    h.Payload["content"],
			ChunkID:    id,
			Similarity: vectorstore.Similarity(h.Distance()),
		})
	}
	return chunks, nil
}
