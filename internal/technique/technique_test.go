package technique

import (
	"context"
	"testing"

	"github.com/nidhogg/brainstorm/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrantLibraryQuery(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory()
	require.NoError(t, store.EnsureCollection(ctx, DefaultCollection, 2))
	require.NoError(t, store.Upsert(ctx, DefaultCollection,
		vectorstore.Point{ID: 1, Vector: []float32{1, 0}, Payload: map[string]string{
			"title": "SCAMPER", "chunk_id": "scamper-01", "content": "Substitute, combine, adapt.",
		}},
		vectorstore.Point{ID: 2, Vector: []float32{0, 1}, Payload: map[string]string{
			"title": "Six Thinking Hats", "content": "Look at a problem from six angles.",
		}},
	))

	lib := NewQdrantLibrary(store, "")
	chunks, err := lib.Query(ctx, []float32{1, 0.2}, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "SCAMPER", chunks[0].Title)
	assert.Equal(t, "scamper-01", chunks[0].ChunkID)
	assert.Equal(t, "2", chunks[1].ChunkID, "falls back to the point id")
	assert.GreaterOrEqual(t, chunks[0].Similarity, chunks[1].Similarity)
	assert.LessOrEqual(t, chunks[0].Similarity, 1.0)
}

func TestQdrantLibraryMissingCollection(t *testing.T) {
	lib := NewQdrantLibrary(vectorstore.NewMemory(), "absent")
	_, err := lib.Query(context.Background(), []float32{1}, 3)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestEmptyLibrary(t *testing.T) {
	chunks, err := Empty{}.Query(context.Background(), []float32{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "브레인", Truncate("브레인스토밍", 3))
}
