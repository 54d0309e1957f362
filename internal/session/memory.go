package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps session state in process memory with lazy TTL expiry.
// Default for deployments without Redis; state does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memorySession
}

type memorySession struct {
	state     State
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memorySession),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (State, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return State{}, nil
	}
	return entry.state, nil
}

func (s *MemoryStore) Save(ctx context.Context, id string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = memorySession{state: state, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
