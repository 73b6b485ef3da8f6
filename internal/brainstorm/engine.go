// Package brainstorm runs the brainstorming steps: purpose, warm-up, timed
// associations, keyword extraction, idea generation and SWOT analysis.
//
// Engine exposes each step as an operation on a session id; Runner drives the
// steps in order as an interactive state machine.
package brainstorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/brainstorm/internal/embedding"
	"github.com/nidhogg/brainstorm/internal/generation"
	"github.com/nidhogg/brainstorm/internal/index"
	"github.com/nidhogg/brainstorm/internal/prompts"
	"github.com/nidhogg/brainstorm/internal/registry"
	"github.com/nidhogg/brainstorm/internal/session"
	"github.com/nidhogg/brainstorm/internal/technique"
	"github.com/nidhogg/brainstorm/internal/vectorstore"
	"go.uber.org/zap"
)

var (
	// ErrEmptyPurpose is returned when the purpose is blank.
	ErrEmptyPurpose = errors.New("purpose is empty")
	// ErrNoPurpose is returned by steps that need a purpose before one is set.
	ErrNoPurpose = errors.New("purpose not set")
	// ErrInsufficientInput is returned when too few associations were given
	// and RequireMinAssociations is set.
	ErrInsufficientInput = errors.New("not enough associations")
	// ErrNoIdeas is returned by analysis when the session has no ideas.
	ErrNoIdeas = errors.New("no ideas to analyze")
)

// Config holds the step parameters.
type Config struct {
	Affirmative            string        `json:"affirmative"`
	AssociationDeadline    time.Duration `json:"-"`
	MinAssociations        int           `json:"min_associations"`
	MaxAssociations        int           `json:"max_associations"`
	RequireMinAssociations bool          `json:"require_min_associations"`
	KeywordTopK            int           `json:"keyword_top_k"`
	TechniqueTopK          int           `json:"technique_top_k"`
	TechniqueExcerpt       int           `json:"technique_excerpt"`
	EmbeddingDimension     int           `json:"embedding_dimension"`
}

// DefaultConfig returns the standard session parameters.
func DefaultConfig() Config {
	return Config{
		Affirmative:         "yes",
		AssociationDeadline: 30 * time.Second,
		MinAssociations:     10,
		MaxAssociations:     20,
		KeywordTopK:         7,
		TechniqueTopK:       3,
		TechniqueExcerpt:    500,
	}
}

var (
	warmupOpts = generation.Options{Temperature: 0.8, MaxTokens: 400}
	ideasOpts  = generation.Options{Temperature: 0.7, MaxTokens: 2000}
	swotOpts   = generation.Options{Temperature: 0.6, MaxTokens: 500}
)

// Generator completes prompts. generation.Client implements it.
type Generator interface {
	Complete(ctx context.Context, prompt string, opts generation.Options) (string, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Sessions  *session.Store
	Vectors   vectorstore.Store
	Embedder  embedding.Provider
	Generator Generator
	Library   technique.Library
	Registry  registry.Registry
	Prompts   *prompts.Set
}

// Engine performs the brainstorming steps for any number of sessions.
type Engine struct {
	sessions *session.Store
	vectors  vectorstore.Store
	embedder embedding.Provider
	gen      Generator
	library  technique.Library
	registry registry.Registry
	prompts  *prompts.Set
	cfg      Config
	logger   *zap.Logger

	mu      sync.Mutex
	indexes map[string]*index.Ephemeral
}

// NewEngine wires the collaborators together. Abandoned sessions have their
// index torn down.
func NewEngine(d Deps, cfg Config, logger *zap.Logger) *Engine {
	if d.Library == nil {
		d.Library = technique.Empty{}
	}
	if d.Registry == nil {
		d.Registry = registry.NewMemory()
	}
	e := &Engine{
		sessions: d.Sessions,
		vectors:  d.Vectors,
		embedder: d.Embedder,
		gen:      d.Generator,
		library:  d.Library,
		registry: d.Registry,
		prompts:  d.Prompts,
		cfg:      cfg,
		logger:   logger,
		indexes:  make(map[string]*index.Ephemeral),
	}
	d.Sessions.OnExpire(e.expire)
	return e
}

// Config returns the step parameters.
func (e *Engine) Config() Config { return e.cfg }

// StartSession creates a session and its ephemeral index. If the index cannot
// be created the session is removed again.
func (e *Engine) StartSession(ctx context.Context) (*session.Session, error) {
	sess, err := e.sessions.Create()
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(ctx, e.vectors, e.embedder, sess.ID, sess.IndexHandle, e.cfg.EmbeddingDimension, e.logger)
	if err != nil {
		e.sessions.Delete(sess.ID)
		return nil, fmt.Errorf("start session: %w", err)
	}

	entry := registry.Entry{
		Handle:    sess.IndexHandle,
		SessionID: sess.ID,
		Type:      registry.TypeEphemeral,
		CreatedAt: sess.CreatedAt,
	}
	if err := e.registry.Record(ctx, entry); err != nil {
		e.logger.Warn("index not recorded", zap.String("session", sess.ID), zap.Error(err))
	}

	e.mu.Lock()
	e.indexes[sess.ID] = idx
	e.mu.Unlock()

	e.logger.Info("session started", zap.String("session", sess.ID), zap.String("collection", sess.IndexHandle))
	return sess, nil
}

// Session returns a copy of the session.
func (e *Engine) Session(id string) (*session.Session, error) {
	return e.sessions.Get(id)
}

// SetPurpose records what the session is brainstorming for.
func (e *Engine) SetPurpose(_ context.Context, id, purpose string) (*session.Session, error) {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, ErrEmptyPurpose
	}
	return e.sessions.Update(id, session.Patch{Purpose: &purpose})
}

// GenerateWarmup asks for two or three warm-up questions. A generation
// failure is not an error: the session gets an empty question list.
func (e *Engine) GenerateWarmup(ctx context.Context, id string) ([]string, error) {
	sess, purpose, err := e.withPurpose(id)
	if err != nil {
		return nil, err
	}
	prompt, err := e.prompts.Render(prompts.Warmup, map[string]string{"purpose": purpose})
	if err != nil {
		return nil, err
	}
	opts := warmupOpts
	opts.System = e.prompts.Text(prompts.WarmupSystem)

	questions := []string{}
	text, err := e.gen.Complete(ctx, prompt, opts)
	if err != nil {
		e.logger.Warn("warm-up generation failed", zap.String("session", sess.ID), zap.Error(err))
	} else {
		questions = ParseWarmup(text)
	}
	if _, err := e.sessions.Update(sess.ID, session.Patch{WarmupQuestions: questions}); err != nil {
		return nil, err
	}
	return questions, nil
}

// AddAssociations appends the non-blank items to the session and indexes them.
func (e *Engine) AddAssociations(ctx context.Context, id string, items []string) (*session.Session, error) {
	sess, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	cleaned := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			cleaned = append(cleaned, it)
		}
	}
	all := append(sess.Associations, cleaned...)
	if e.cfg.RequireMinAssociations && len(all) < e.cfg.MinAssociations {
		return nil, fmt.Errorf("%w: %d of %d", ErrInsufficientInput, len(all), e.cfg.MinAssociations)
	}

	idx, err := e.index(id)
	if err != nil {
		return nil, err
	}
	updated, err := e.sessions.Update(id, session.Patch{Associations: all})
	if err != nil {
		return nil, err
	}
	if err := idx.AddItems(ctx, cleaned); err != nil {
		return updated, fmt.Errorf("index associations: %w", err)
	}
	return updated, nil
}

// ExtractKeywords ranks the session's associations against its purpose.
func (e *Engine) ExtractKeywords(ctx context.Context, id string) ([]index.Keyword, error) {
	_, purpose, err := e.withPurpose(id)
	if err != nil {
		return nil, err
	}
	return e.SearchAssociations(ctx, id, purpose, e.cfg.KeywordTopK)
}

// SearchAssociations ranks the session's associations against an arbitrary query.
func (e *Engine) SearchAssociations(ctx context.Context, id, query string, topK int) ([]index.Keyword, error) {
	if _, err := e.sessions.Get(id); err != nil {
		return nil, err
	}
	idx, err := e.index(id)
	if err != nil {
		return nil, err
	}
	keywords, err := idx.Query(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if keywords == nil {
		keywords = []index.Keyword{}
	}
	return keywords, nil
}

// GenerateIdeas combines the purpose, the keywords and the closest technique
// excerpts into one prompt and stores the parsed ideas.
func (e *Engine) GenerateIdeas(ctx context.Context, id string, keywords []index.Keyword) ([]session.Idea, error) {
	sess, purpose, err := e.withPurpose(id)
	if err != nil {
		return nil, err
	}
	idx, err := e.index(id)
	if err != nil {
		return nil, err
	}

	prompt, err := e.prompts.Render(prompts.Ideas, map[string]string{
		"purpose":    purpose,
		"keywords":   e.keywordList(keywords),
		"techniques": e.techniqueList(ctx, idx, purpose),
	})
	if err != nil {
		return nil, err
	}
	opts := ideasOpts
	opts.System = e.prompts.Text(prompts.IdeasSystem)

	text, err := e.gen.Complete(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("generate ideas: %w", err)
	}
	ideas := ParseIdeas(text)
	if _, err := e.sessions.Update(sess.ID, session.Patch{Ideas: ideas}); err != nil {
		return nil, err
	}
	e.logger.Info("ideas generated", zap.String("session", sess.ID), zap.Int("count", len(ideas)))
	return ideas, nil
}

func (e *Engine) keywordList(keywords []index.Keyword) string {
	n := len(keywords)
	if n > e.cfg.KeywordTopK {
		n = e.cfg.KeywordTopK
	}
	words := make([]string, 0, n)
	for _, k := range keywords[:n] {
		words = append(words, k.Text)
	}
	return strings.Join(words, ", ")
}

// techniqueList renders the closest technique excerpts. Lookup failures leave
// the list empty.
func (e *Engine) techniqueList(ctx context.Context, idx *index.Ephemeral, purpose string) string {
	vec, err := idx.Embed(ctx, purpose)
	if err != nil {
		e.logger.Warn("technique lookup skipped", zap.Error(err))
		return ""
	}
	chunks, err := e.library.Query(ctx, vec, e.cfg.TechniqueTopK)
	if err != nil {
		e.logger.Warn("technique lookup failed", zap.Error(err))
		return ""
	}
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		parts = append(parts, fmt.Sprintf("[Technique %d] %s\n%s...", i+1, c.Title, technique.Truncate(c.Content, e.cfg.TechniqueExcerpt)))
	}
	return strings.Join(parts, "\n\n")
}

// AnalyzeIdeas attaches a SWOT analysis to every idea of the session. An idea
// whose analysis fails gets session.NoData in all four sections. If ctx ends
// part way, the ideas analysed so far are saved, the rest keep no analysis,
// and ctx's error is returned with them.
func (e *Engine) AnalyzeIdeas(ctx context.Context, id string) ([]session.Idea, error) {
	sess, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if len(sess.Ideas) == 0 {
		return nil, ErrNoIdeas
	}
	opts := swotOpts
	opts.System = e.prompts.Text(prompts.SWOTSystem)

	ideas := sess.Ideas
	analysed := 0
	for i := range ideas {
		if ctx.Err() != nil {
			break
		}
		swot := session.EmptySWOT()
		prompt, err := e.prompts.Render(prompts.SWOT, map[string]string{
			"title":       orDefault(ideas[i].Title, "(untitled)"),
			"description": orDefault(ideas[i].Description, "(no description)"),
		})
		if err != nil {
			return nil, err
		}
		text, err := e.gen.Complete(ctx, prompt, opts)
		if err != nil && ctx.Err() != nil {
			break
		}
		if err != nil {
			e.logger.Warn("swot analysis failed",
				zap.String("session", id), zap.Int("idea", i), zap.Error(err))
		} else {
			swot = ParseSWOT(text)
		}
		ideas[i].Analysis = &swot
		analysed++
	}

	if _, err := e.sessions.Update(id, session.Patch{Ideas: ideas}); err != nil {
		return nil, err
	}
	if analysed < len(ideas) {
		return ideas, fmt.Errorf("analysis interrupted after %d of %d ideas: %w", analysed, len(ideas), ctx.Err())
	}
	return ideas, nil
}

// EndSession tears down the session's index and deletes the session. Teardown
// failures are logged; the session is deleted regardless. It reports whether
// the session existed.
func (e *Engine) EndSession(ctx context.Context, id string) bool {
	e.mu.Lock()
	idx := e.indexes[id]
	delete(e.indexes, id)
	e.mu.Unlock()

	if idx != nil {
		e.release(ctx, idx)
	}
	return e.sessions.Delete(id)
}

// SweepOrphans deletes recorded collections that no live session owns. An
// in-memory registry forgets everything on restart, so with one the store is
// also scanned for session collections by name.
func (e *Engine) SweepOrphans(ctx context.Context) (int, error) {
	n, err := registry.Sweep(ctx, e.registry, e.vectors, e.sessions.Exists, e.logger)
	if err != nil {
		return n, err
	}
	if _, inMemory := e.registry.(*registry.Memory); !inMemory {
		return n, nil
	}
	m, err := registry.SweepPrefix(ctx, e.vectors, session.IndexPrefix, e.sessions.Exists, e.logger)
	return n + m, err
}

// EndAll ends every session that still has an index and returns how many
// were ended.
func (e *Engine) EndAll(ctx context.Context) int {
	e.mu.Lock()
	ids := make([]string, 0, len(e.indexes))
	for id := range e.indexes {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	n := 0
	for _, id := range ids {
		if e.EndSession(ctx, id) {
			n++
		}
	}
	return n
}

func (e *Engine) expire(sess *session.Session) {
	e.mu.Lock()
	idx := e.indexes[sess.ID]
	delete(e.indexes, sess.ID)
	e.mu.Unlock()
	if idx == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	e.release(ctx, idx)
}

func (e *Engine) release(ctx context.Context, idx *index.Ephemeral) {
	if err := idx.Teardown(ctx); err != nil {
		e.logger.Warn("index teardown failed",
			zap.String("session", idx.SessionID()), zap.String("collection", idx.Handle()), zap.Error(err))
		return
	}
	if err := e.registry.Remove(ctx, idx.Handle()); err != nil {
		e.logger.Warn("index not unregistered", zap.String("collection", idx.Handle()), zap.Error(err))
	}
}

func (e *Engine) index(id string) (*index.Ephemeral, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indexes[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, index.ErrTornDown)
	}
	return idx, nil
}

func (e *Engine) withPurpose(id string) (*session.Session, string, error) {
	sess, err := e.sessions.Get(id)
	if err != nil {
		return nil, "", err
	}
	if sess.Purpose == nil {
		return nil, "", fmt.Errorf("session %s: %w", id, ErrNoPurpose)
	}
	return sess, *sess.Purpose, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
