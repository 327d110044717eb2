// Package cart implements the cart reconciliation service and the
// session-scoped stores holding each user's working set of purchase lines.
package cart

import (
	"context"
	"sync"
	"time"

	"github.com/storefrontd/checkout-core/internal/model"
)

// SessionStore holds per-user cart lines keyed by product id. Each working
// set is owned exclusively by that user's request flow; entries expire after
// an idle TTL rather than living for the whole process lifetime.
type SessionStore interface {
	Lines(ctx context.Context, userID string) (map[string]model.CartLine, error)
	SaveLines(ctx context.Context, userID string, lines map[string]model.CartLine) error
	Drop(ctx context.Context, userID string) error
}

type sessionEntry struct {
	lines     map[string]model.CartLine
	expiresAt time.Time
}

// MemoryStore is the in-process SessionStore backend. A janitor evicts
// expired entries on a sweep interval; reads and writes refresh the TTL.
type MemoryStore struct {
	mu    sync.Mutex
	m     map[string]sessionEntry
	ttl   time.Duration
	sweep time.Duration
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore with the given idle TTL and janitor
// sweep interval.
func NewMemoryStore(ttl, sweep time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if sweep <= 0 {
		sweep = time.Minute
	}
	return &MemoryStore{
		m:     make(map[string]sessionEntry),
		ttl:   ttl,
		sweep: sweep,
		now:   time.Now,
	}
}

// Start runs the eviction janitor until ctx is done.
func (s *MemoryStore) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(s.sweep)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.evictExpired()
			}
		}
	}()
}

func (s *MemoryStore) evictExpired() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.m {
		if now.After(e.expiresAt) {
			delete(s.m, id)
		}
	}
}

// Lines returns a copy of the user's working set. Expired entries read as
// empty. A successful read refreshes the idle TTL.
func (s *MemoryStore) Lines(_ context.Context, userID string) (map[string]model.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[userID]
	if !ok || s.now().After(e.expiresAt) {
		delete(s.m, userID)
		return map[string]model.CartLine{}, nil
	}
	e.expiresAt = s.now().Add(s.ttl)
	s.m[userID] = e
	out := make(map[string]model.CartLine, len(e.lines))
	for k, v := range e.lines {
		out[k] = v
	}
	return out, nil
}

// SaveLines replaces the user's working set. Saving an empty set drops the
// entry entirely.
func (s *MemoryStore) SaveLines(_ context.Context, userID string, lines map[string]model.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) == 0 {
		delete(s.m, userID)
		return nil
	}
	cp := make(map[string]model.CartLine, len(lines))
	for k, v := range lines {
		cp[k] = v
	}
	s.m[userID] = sessionEntry{lines: cp, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Drop removes the user's working set.
func (s *MemoryStore) Drop(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
	return nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
