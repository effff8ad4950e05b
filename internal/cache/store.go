// Package cache keeps the most recent prediction and profit analysis per
// session slot.
package cache

import (
	"context"
	"sync"
	"time"

	"mkulima/internal/domain"
)

// DefaultKey is the slot used by clients that do not identify a session.
const DefaultKey = "latest"

type Store interface {
	Load(ctx context.Context, key string) (domain.Snapshot, bool, error)
	Save(ctx context.Context, key string, snap domain.Snapshot) error
}

type memoryEntry struct {
	snap    domain.Snapshot
	savedAt time.Time
}

// MemoryStore is an in-process Store. Entries older than ttl are treated as
// absent; a zero ttl keeps them until restart.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Load(_ context.Context, key string) (domain.Snapshot, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || s.expired(entry) {
		return domain.Snapshot{}, false, nil
	}
	return entry.snap, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, snap domain.Snapshot) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{snap: snap, savedAt: s.now()}
	s.mu.Unlock()
	return nil
}

// Sweep drops expired slots and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(entry memoryEntry) bool {
	return s.ttl > 0 && s.now().Sub(entry.savedAt) > s.ttl
}
