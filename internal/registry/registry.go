// Package registry records which ephemeral collections exist so that
// collections left behind by a crashed run can be swept on the next start.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/brainstorm/internal/vectorstore"
	"go.uber.org/zap"
)

// TypeEphemeral tags per-session collections.
const TypeEphemeral = "ephemeral"

// Entry is the metadata of one ephemeral collection.
type Entry struct {
	Handle    string    `json:"handle"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry stores collection metadata.
type Registry interface {
	Record(ctx context.Context, e Entry) error
	Remove(ctx context.Context, handle string) error
	List(ctx context.Context) ([]Entry, error)
}

// Memory is a process-local Registry. Nothing survives a restart, so Sweep
// over it only finds collections of the current process; SweepPrefix covers
// the rest.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Handle] = e
	return nil
}

func (m *Memory) Remove(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, handle)
	return nil
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

// Sweep deletes every recorded collection for which live reports false and
// drops its entry. It returns how many collections were swept.
func Sweep(ctx context.Context, reg Registry, store vectorstore.Store, live func(handle string) bool, logger *zap.Logger) (int, error) {
	entries, err := reg.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	swept := 0
	for _, e := range entries {
		if live(e.Handle) {
			continue
		}
		err := store.DeleteCollection(ctx, e.Handle)
		if err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
			logger.Warn("orphan collection not deleted", zap.String("collection", e.Handle), zap.Error(err))
			continue
		}
		if err := reg.Remove(ctx, e.Handle); err != nil {
			logger.Warn("registry entry not removed", zap.String("collection", e.Handle), zap.Error(err))
			continue
		}
		logger.Info("orphan collection swept",
			zap.String("collection", e.Handle),
			zap.String("session", e.SessionID),
			zap.Time("created_at", e.CreatedAt))
		swept++
	}
	return swept, nil
}

// SweepPrefix deletes every collection in store whose name starts with prefix
// and for which live reports false. It finds orphans that no registry
// recorded, such as those left by a process whose registry was in memory.
func SweepPrefix(ctx context.Context, store vectorstore.Store, prefix string, live func(handle string) bool, logger *zap.Logger) (int, error) {
	names, err := store.ListCollections(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep %s*: %w", prefix, err)
	}
	swept := 0
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || live(name) {
			continue
		}
		err := store.DeleteCollection(ctx, name)
		if err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
			logger.Warn("orphan collection not deleted", zap.String("collection", name), zap.Error(err))
			continue
		}
		logger.Info("orphan collection swept", zap.String("collection", name))
		swept++
	}
	return swept, nil
}
