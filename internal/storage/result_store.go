package storage

import (
	"context"
	"sync"
	"time"

	"github.com/radiusdt/vector-attribution/internal/models"
)

type heldResult struct {
	result   *models.AttributionResult
	storedAt time.Time
}

// InMemoryResultStore holds session results in process memory. Entries older
// than ttl are treated as absent.
type InMemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]heldResult
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryResultStore creates a result store. A zero ttl keeps entries
// until they are replaced or deleted.
func NewInMemoryResultStore(ttl time.Duration) *InMemoryResultStore {
	return &InMemoryResultStore{
		results: make(map[string]heldResult),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *InMemoryResultStore) Put(ctx context.Context, sessionID string, result *models.AttributionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[sessionID] = heldResult{result: result, storedAt: s.now()}
	return nil
}

func (s *InMemoryResultStore) Get(ctx context.Context, sessionID string) (*models.AttributionResult, error) {
	s.mu.RLock()
	held, ok := s.results[sessionID]
	s.mu.RUnlock()

	if !ok || s.expired(held) {
		return nil, ErrResultNotFound
	}
	return held.result, nil
}

func (s *InMemoryResultStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, sessionID)
	return nil
}

// Cleanup drops expired entries and returns how many were removed.
func (s *InMemoryResultStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	for id, held := range s.results {
		if s.expired(held) {
			delete(s.results, id)
			count++
		}
	}
	return count
}

func (s *InMemoryResultStore) expired(held heldResult) bool {
	return s.ttl > 0 && s.now().Sub(held.storedAt) > s.ttl
}
