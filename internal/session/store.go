package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a session id is unknown or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrTooManyAssociations is returned when an update exceeds the association bound.
	ErrTooManyAssociations = errors.New("too many associations")
)

// Config controls session lifetime.
type Config struct {
	// TTL is the idle time after which a session counts as abandoned. Zero disables expiry.
	TTL time.Duration
	// CleanupInterval is how often abandoned sessions are swept.
	CleanupInterval time.Duration
	// MaxAssociations bounds the association list of a session.
	MaxAssociations int
}

// ExpireFunc receives a copy of a session that was abandoned.
type ExpireFunc func(s *Session)

// entry is the cached value. released marks explicit deletes so the eviction
// callback only reports expiry.
type entry struct {
	session  *Session
	released atomic.Bool
}

// Store maps session ids to sessions.
type Store struct {
	cache    *cache.Cache
	maxAssoc int
	logger   *zap.Logger

	mu       sync.Mutex
	onExpire ExpireFunc
}

// NewStore creates an empty store.
func NewStore(cfg Config, logger *zap.Logger) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	s := &Store{
		cache:    cache.New(ttl, interval),
		maxAssoc: cfg.MaxAssociations,
		logger:   logger,
	}
	s.cache.OnEvicted(s.evicted)
	return s
}

// OnExpire registers the hook run for every abandoned session.
func (s *Store) OnExpire(fn ExpireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = fn
}

func (s *Store) evicted(id string, v interface{}) {
	e, ok := v.(*entry)
	if !ok || e.released.Load() {
		return
	}
	s.logger.Info("session expired", zap.String("session", id))

	s.mu.Lock()
	fn := s.onExpire
	sess := e.session.clone()
	s.mu.Unlock()
	if fn != nil {
		fn(sess)
	}
}

// Create starts a new empty session.
func (s *Store) Create() (*Session, error) {
	id := uuid.New().String()
	sess := &Session{
		ID:              id,
		CreatedAt:       time.Now(),
		WarmupQuestions: []string{},
		Associations:    []string{},
		Ideas:           []Idea{},
		IndexHandle:     HandleFor(id),
	}
	if err := s.cache.Add(id, &entry{session: sess}, cache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Debug("session created", zap.String("session", id))
	return sess.clone(), nil
}

// Get returns a copy of the session and refreshes its idle timer.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, e, cache.DefaultExpiration)
	return e.session.clone(), nil
}

// Update merges the patch into the session and returns the updated copy.
func (s *Store) Update(id string, p Patch) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if p.Associations != nil && s.maxAssoc > 0 && len(p.Associations) > s.maxAssoc {
		return nil, fmt.Errorf("update session %s: %w: %d > %d", id, ErrTooManyAssociations, len(p.Associations), s.maxAssoc)
	}

	next := e.session.clone()
	if p.Purpose != nil {
		purpose := *p.Purpose
		next.Purpose = &purpose
	}
	if p.WarmupQuestions != nil {
		next.WarmupQuestions = append([]string(nil), p.WarmupQuestions...)
	}
	if p.Associations != nil {
		next.Associations = append([]string(nil), p.Associations...)
	}
	if p.Ideas != nil {
		next.Ideas = make([]Idea, len(p.Ideas))
		for i, idea := range p.Ideas {
			next.Ideas[i] = idea.clone()
		}
	}
	e.session = next
	s.cache.Set(id, e, cache.DefaultExpiration)
	return next.clone(), nil
}

// Delete removes the session. It reports whether the session existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.lookup(id)
	if err != nil {
		return false
	}
	e.released.Store(true)
	s.cache.Delete(id)
	s.logger.Debug("session deleted", zap.String("session", id))
	return true
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	return len(s.cache.Items())
}

// Exists reports whether a live session has the given index handle.
func (s *Store) Exists(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.cache.Items() {
		if e, ok := item.Object.(*entry); ok && e.session.IndexHandle == handle {
			return true
		}
	}
	return false
}

// lookup must be called with s.mu held.
func (s *Store) lookup(id string) (*entry, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v.(*entry), nil
}
