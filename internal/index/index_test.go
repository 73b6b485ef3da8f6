package index

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/nidhogg/brainstorm/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEmbedder maps known words onto fixed vectors; anything else is an error.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	failAt  int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		f.calls++
		if f.failAt > 0 && f.calls == f.failAt {
			return nil, errors.New("embedding service unavailable")
		}
		v, ok := f.vectors[t]
		if !ok {
			return nil, errors.New("unknown text " + t)
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func newEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{
		"travel":   {1, 0, 0},
		"airplane": {0.9, 0.1, 0},
		"suitcase": {0.7, 0.7, 0},
		"cooking":  {0, 0, 1},
		"opposite": {-1, 0, 0},
	}}
}

func open(t *testing.T, store vectorstore.Store, emb *fakeEmbedder, session string) *Ephemeral {
	t.Helper()
	idx, err := Open(context.Background(), store, emb, session, "ephemeral_session_"+session, 0, zap.NewNop())
	require.NoError(t, err)
	return idx
}

func TestQueryOrderedBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := open(t, vectorstore.NewMemory(), newEmbedder(), "s1")
	require.NoError(t, idx.AddItems(ctx, []string{"cooking", "suitcase", "airplane", "opposite"}))

	keywords, err := idx.Query(ctx, "travel", 7)
	require.NoError(t, err)
	require.Len(t, keywords, 4)
	assert.Equal(t, "airplane", keywords[0].Text)
	assert.Equal(t, 2, keywords[0].Ordinal)

	assert.True(t, sort.SliceIsSorted(keywords, func(i, j int) bool {
		return keywords[i].Similarity > keywords[j].Similarity
	}))
	for _, k := range keywords {
		assert.GreaterOrEqual(t, k.Similarity, 0.0)
		assert.LessOrEqual(t, k.Similarity, 1.0)
	}
	assert.Zero(t, keywords[3].Similarity, "opposite vector clamps to zero")
}

func TestQueryRespectsTopK(t *testing.T) {
	ctx := context.Background()
	idx := open(t, vectorstore.NewMemory(), newEmbedder(), "s1")
	require.NoError(t, idx.AddItems(ctx, []string{"cooking", "suitcase", "airplane"}))

	keywords, err := idx.Query(ctx, "travel", 2)
	require.NoError(t, err)
	assert.Len(t, keywords, 2)
}

func TestAddItemsPartialFailureKeepsEarlierItems(t *testing.T) {
	ctx := context.Background()
	emb := newEmbedder()
	emb.failAt = 3
	idx := open(t, vectorstore.NewMemory(), emb, "s1")

	err := idx.AddItems(ctx, []string{"cooking", "suitcase", "airplane"})
	require.ErrorIs(t, err, ErrEmbedding)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEmbedFailureIsNotRetried(t *testing.T) {
	emb := newEmbedder()
	idx := open(t, vectorstore.NewMemory(), emb, "s1")

	_, err := idx.Embed(context.Background(), "unheard-of")
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, 1, emb.calls)
}

func TestTeardownIsIrreversible(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory()
	idx := open(t, store, newEmbedder(), "s1")
	require.NoError(t, idx.AddItems(ctx, []string{"cooking"}))

	require.NoError(t, idx.Teardown(ctx))
	assert.Empty(t, store.Collections())

	_, err := idx.Query(ctx, "travel", 3)
	assert.ErrorIs(t, err, ErrTornDown)
	_, err = idx.Count(ctx)
	assert.ErrorIs(t, err, ErrTornDown)
	assert.ErrorIs(t, idx.AddItems(ctx, []string{"travel"}), ErrTornDown)
	assert.ErrorIs(t, idx.Teardown(ctx), ErrTornDown)
}

func TestIndexesShareStoreWithoutInterference(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory()
	a := open(t, store, newEmbedder(), "a")
	b := open(t, store, newEmbedder(), "b")

	require.NoError(t, a.AddItems(ctx, []string{"cooking", "travel"}))
	require.NoError(t, b.AddItems(ctx, []string{"suitcase"}))
	require.NoError(t, a.Teardown(ctx))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keywords, err := b.Query(ctx, "travel", 5)
	require.NoError(t, err)
	require.Len(t, keywords, 1)
	assert.Equal(t, "suitcase", keywords[0].Text)
}
