package brainstorm

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/brainstorm/internal/index"
	"github.com/nidhogg/brainstorm/internal/registry"
	"github.com/nidhogg/brainstorm/internal/session"
	"github.com/nidhogg/brainstorm/internal/technique"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startWithPurpose(t *testing.T, f *fixture, purpose string) *session.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := f.engine.StartSession(ctx)
	require.NoError(t, err)
	_, err = f.engine.SetPurpose(ctx, sess.ID, purpose)
	require.NoError(t, err)
	return sess
}

func TestEngineFullFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess := startWithPurpose(t, f, "mobile app idea")

	entries, err := f.registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, sess.IndexHandle, entries[0].Handle)
	assert.Equal(t, registry.TypeEphemeral, entries[0].Type)

	questions, err := f.engine.GenerateWarmup(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Who is the app for?", "What problem does it solve first?"}, questions)

	_, err = f.engine.AddAssociations(ctx, sess.ID, associations(15))
	require.NoError(t, err)

	keywords, err := f.engine.ExtractKeywords(ctx, sess.ID)
	require.NoError(t, err)
	require.NotEmpty(t, keywords)
	assert.LessOrEqual(t, len(keywords), 7)
	for i, k := range keywords {
		assert.GreaterOrEqual(t, k.Similarity, 0.0)
		assert.LessOrEqual(t, k.Similarity, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, k.Similarity, keywords[i-1].Similarity)
		}
	}

	ideas, err := f.engine.GenerateIdeas(ctx, sess.ID, keywords)
	require.NoError(t, err)
	require.Len(t, ideas, 2)

	prompt := f.gen.calls(ideasOpts.MaxTokens)[0]
	assert.Contains(t, prompt, keywords[0].Text)
	assert.Contains(t, prompt, "[Technique 1] SCAMPER")

	analyzed, err := f.engine.AnalyzeIdeas(ctx, sess.ID)
	require.NoError(t, err)
	for _, idea := range analyzed {
		require.NotNil(t, idea.Analysis)
		assert.NotEmpty(t, idea.Analysis.Strengths)
		assert.NotEmpty(t, idea.Analysis.Weaknesses)
		assert.NotEmpty(t, idea.Analysis.Opportunities)
		assert.NotEmpty(t, idea.Analysis.Threats)
	}

	stored, err := f.engine.Session(sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Associations, 15)
	require.Len(t, stored.Ideas, 2)
	assert.Equal(t, "Cheap to build", stored.Ideas[0].Analysis.Strengths)

	assert.True(t, f.engine.EndSession(ctx, sess.ID))
	assert.False(t, f.engine.EndSession(ctx, sess.ID))
	assert.Empty(t, f.ephemeral())
	entries, err = f.registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngineUnknownSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.engine.SetPurpose(ctx, "missing", "x")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.engine.GenerateWarmup(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.engine.AddAssociations(ctx, "missing", []string{"a"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.engine.ExtractKeywords(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = f.engine.AnalyzeIdeas(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestEngineNeedsPurpose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, err := f.engine.StartSession(ctx)
	require.NoError(t, err)

	_, err = f.engine.SetPurpose(ctx, sess.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyPurpose)
	_, err = f.engine.GenerateWarmup(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNoPurpose)
}

func TestEngineStartFailsWhenIndexCannotBeCreated(t *testing.T) {
	f := newFixture(t, nil)
	f.vectors.failCreate = true

	_, err := f.engine.StartSession(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.sessions.Count())
}

func TestEngineWarmupFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.gen.fail[warmupOpts.MaxTokens] = errExhausted
	sess := startWithPurpose(t, f, "mobile app idea")

	questions, err := f.engine.GenerateWarmup(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestEngineAnalysisFailureUsesSentinel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.gen.fail[swotOpts.MaxTokens] = errExhausted
	sess := startWithPurpose(t, f, "mobile app idea")

	_, err := f.engine.GenerateIdeas(ctx, sess.ID, nil)
	require.NoError(t, err)
	ideas, err := f.engine.AnalyzeIdeas(ctx, sess.ID)
	require.NoError(t, err)
	for _, idea := range ideas {
		require.NotNil(t, idea.Analysis)
		assert.Equal(t, session.EmptySWOT(), *idea.Analysis)
	}
}

func TestEngineAnalysisStopsWhenCancelled(t *testing.T) {
	f := newFixture(t, nil)
	sess := startWithPurpose(t, f, "mobile app idea")
	_, err := f.engine.GenerateIdeas(context.Background(), sess.ID, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gen.after = func(maxTokens int) {
		if maxTokens == swotOpts.MaxTokens {
			cancel()
		}
	}

	ideas, err := f.engine.AnalyzeIdeas(ctx, sess.ID)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, ideas, 2)
	require.NotNil(t, ideas[0].Analysis)
	assert.Equal(t, "Cheap to build", ideas[0].Analysis.Strengths)
	assert.Nil(t, ideas[1].Analysis)
	assert.Len(t, f.gen.calls(swotOpts.MaxTokens), 1)

	stored, err := f.engine.Session(sess.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.Ideas[0].Analysis)
	assert.Nil(t, stored.Ideas[1].Analysis)
}

func TestEngineIdeaFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.gen.fail[ideasOpts.MaxTokens] = errExhausted
	sess := startWithPurpose(t, f, "mobile app idea")
	_, err := f.engine.AddAssociations(ctx, sess.ID, associations(3))
	require.NoError(t, err)

	_, err = f.engine.GenerateIdeas(ctx, sess.ID, nil)
	assert.ErrorIs(t, err, errExhausted)

	stored, err := f.engine.Session(sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Associations, 3)
	assert.Empty(t, stored.Ideas)
}

func TestEngineRequireMinAssociations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *Config) { c.RequireMinAssociations = true })
	sess := startWithPurpose(t, f, "mobile app idea")

	_, err := f.engine.AddAssociations(ctx, sess.ID, associations(4))
	assert.ErrorIs(t, err, ErrInsufficientInput)

	_, err = f.engine.AddAssociations(ctx, sess.ID, associations(10))
	assert.NoError(t, err)
}

func TestEngineEndSessionSurvivesTeardownFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess := startWithPurpose(t, f, "mobile app idea")
	f.vectors.failDelete = true

	assert.True(t, f.engine.EndSession(ctx, sess.ID))
	_, err := f.engine.Session(sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = f.engine.SearchAssociations(ctx, sess.ID, "x", 3)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// The failed collection stays recorded and the next sweep removes it.
	f.vectors.failDelete = false
	n, err := f.engine.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, f.ephemeral())
}

func TestEngineSweepKeepsLiveSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	live := startWithPurpose(t, f, "mobile app idea")
	require.NoError(t, f.registry.Record(ctx, registry.Entry{Handle: session.HandleFor("crashed-run"), Type: registry.TypeEphemeral}))

	n, err := f.engine.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{live.IndexHandle}, f.ephemeral())
}

func TestEngineAbandonedSessionIsTornDown(t *testing.T) {
	f := newFixture(t, nil)
	f.sessions = session.NewStore(session.Config{TTL: 30 * time.Millisecond, CleanupInterval: 10 * time.Millisecond}, zap.NewNop())
	f.engine = NewEngine(Deps{
		Sessions:  f.sessions,
		Vectors:   f.vectors,
		Embedder:  hashEmbedder{},
		Generator: f.gen,
		Prompts:   f.engine.prompts,
	}, DefaultConfig(), zap.NewNop())

	_, err := f.engine.StartSession(context.Background())
	require.NoError(t, err)
	require.Len(t, f.ephemeral(), 1)

	require.Eventually(t, func() bool { return len(f.ephemeral()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSearchAssociations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess := startWithPurpose(t, f, "mobile app idea")
	_, err := f.engine.AddAssociations(ctx, sess.ID, []string{"coffee", "commute"})
	require.NoError(t, err)

	got, err := f.engine.SearchAssociations(ctx, sess.ID, "coffee", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, index.Keyword{Text: "coffee", Similarity: got[0].Similarity, Ordinal: 0}, got[0])
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestEngineSweepFindsCollectionsOfAnotherProcess(t *testing.T) {
	ctx := context.Background()
	first := newFixture(t, nil)
	left := startWithPurpose(t, first, "mobile app idea")

	// A restarted process shares the vector store but starts with empty
	// in-memory sessions and registry.
	second := NewEngine(Deps{
		Sessions:  session.NewStore(session.Config{}, zap.NewNop()),
		Vectors:   first.vectors,
		Embedder:  hashEmbedder{},
		Generator: first.gen,
		Registry:  registry.NewMemory(),
		Prompts:   first.engine.prompts,
	}, DefaultConfig(), zap.NewNop())
	live, err := second.StartSession(ctx)
	require.NoError(t, err)
	require.Len(t, first.ephemeral(), 2)

	n, err := second.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{live.IndexHandle}, first.ephemeral())
	assert.NotContains(t, first.ephemeral(), left.IndexHandle)
	assert.Contains(t, first.vectors.Collections(), technique.DefaultCollection)
}

func TestEngineEndAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	startWithPurpose(t, f, "mobile app idea")
	startWithPurpose(t, f, "weekend plans")
	require.Len(t, f.ephemeral(), 2)

	assert.Equal(t, 2, f.engine.EndAll(ctx))
	assert.Empty(t, f.ephemeral())
	assert.Zero(t, f.sessions.Count())
	entries, err := f.registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, f.engine.EndAll(ctx))
}
