package localstore

import (
	"sync"

	"github.com/raymonnguyen/baubiz-sub000/internal/domain"
)

// MemoryStore implements Store with in-memory storage. Used in tests and by
// callers that do not want snapshots to survive the process.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string][]domain.CartLine
	flags map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts: make(map[string][]domain.CartLine),
		flags: make(map[string]bool),
	}
}

func (s *MemoryStore) SaveCart(userID string, lines []domain.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]domain.CartLine, len(lines))
	copy(snapshot, lines)
	s.carts[userID] = snapshot
	return nil
}

func (s *MemoryStore) LoadCart(userID string) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.CartLine, len(s.carts[userID]))
	copy(lines, s.carts[userID])
	return lines, nil
}

func (s *MemoryStore) DeleteCart(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}

func (s *MemoryStore) SetSyncFailed(userID string, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags[userID] = failed
	return nil
}

func (s *MemoryStore) SyncFailed(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.flags[userID]
}

func (s *MemoryStore) Close() error {
	return nil
}
